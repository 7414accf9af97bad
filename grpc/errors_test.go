package grpc

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ac "github.com/panyam/authcore"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"bad request", ac.BadRequest(ac.MsgMissingPassword), codes.InvalidArgument},
		{"auth failed", ac.AuthFailed(ac.MsgInvalidCredentials), codes.Unauthenticated},
		{"not found", ac.NotFound(ac.MsgEmailDoesNotExist), codes.NotFound},
		{"no local passport", ac.Conflict(ac.MsgNoLocalPassport), codes.FailedPrecondition},
		{"duplicate", ac.NewAuthError(ac.KindConflict, ac.MsgIdentityTaken, fmt.Errorf("x: %w", ac.ErrDuplicate)), codes.AlreadyExists},
		{"internal", ac.InternalError(errors.New("db down")), codes.Internal},
		{"plain error", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(ToStatus(tt.err))
			if !ok {
				t.Fatalf("expected status error")
			}
			if st.Code() != tt.code {
				t.Errorf("expected %v, got %v", tt.code, st.Code())
			}
		})
	}
	if ToStatus(nil) != nil {
		t.Error("expected nil for nil error")
	}
}
