//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/stretchr/testify/require"

	ac "github.com/panyam/authcore"
	"github.com/panyam/authcore/stores/storetest"
)

// These tests need the Datastore emulator:
//
//	gcloud beta emulators datastore start --no-store-on-disk
//	$(gcloud beta emulators datastore env-init)
func TestStoreContract(t *testing.T) {
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := datastore.NewClient(ctx, "authcore-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	storetest.Run(t, func(t *testing.T) storetest.Store {
		// a fresh namespace per test isolates it from the others
		return NewStore(client, "t"+ac.NewID()[:8])
	})
}
