package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("expected MetadataKeyAuthorization %q, got %q", DefaultMetadataKeyAuthorization, config.MetadataKeyAuthorization)
	}
	if config.MetadataKeyUserID != DefaultMetadataKeyUserID {
		t.Errorf("expected MetadataKeyUserID %q, got %q", DefaultMetadataKeyUserID, config.MetadataKeyUserID)
	}
	if config.TrustUserIDMetadata {
		t.Error("expected TrustUserIDMetadata to be false by default")
	}
}

func TestEnsureDefaults(t *testing.T) {
	config := &Config{}
	config.EnsureDefaults()
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("expected MetadataKeyAuthorization %q, got %q", DefaultMetadataKeyAuthorization, config.MetadataKeyAuthorization)
	}
	if config.MetadataKeyUserID != DefaultMetadataKeyUserID {
		t.Errorf("expected MetadataKeyUserID %q, got %q", DefaultMetadataKeyUserID, config.MetadataKeyUserID)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if id := UserIDFromContext(context.Background()); id != "" {
		t.Errorf("expected empty user ID, got %q", id)
	}
	ctx := ContextWithUserID(context.Background(), "user123")
	if id := UserIDFromContext(ctx); id != "user123" {
		t.Errorf("expected user ID %q, got %q", "user123", id)
	}
	if !IsAuthenticated(ctx) {
		t.Error("expected context to be authenticated")
	}
}

func TestOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "tok")
	ctx = UserIDToOutgoingContext(ctx, "user123")

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if got := md.Get(DefaultMetadataKeyAuthorization); len(got) != 1 || got[0] != "Bearer tok" {
		t.Errorf("expected bearer token in metadata, got %v", got)
	}
	if got := md.Get(DefaultMetadataKeyUserID); len(got) != 1 || got[0] != "user123" {
		t.Errorf("expected user id in metadata, got %v", got)
	}
}
