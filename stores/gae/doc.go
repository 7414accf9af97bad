//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of authcore.Store.
// It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: User accounts with profile data and role names
//   - Role: Named roles, keyed by name
//   - Passport: Credential bindings linked to users
//   - Claim: Reservations enforcing unique usernames, emails and provider identities
//   - Bootstrap: Sentinel entity claimed by the first registered user
//
// # Namespacing
//
// Pass a namespace when creating the store to isolate data between tenants:
//
//	store := gae.NewStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewStore(client, "") // default namespace
package gae
