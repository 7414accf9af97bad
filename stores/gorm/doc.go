//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of authcore.Store.
// It supports any database that GORM supports (PostgreSQL, SQLite, etc.)
// and is the recommended backend for deployments with more than one
// server process.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: User accounts (username and email are unique when present)
//   - roles: Named roles such as "admin"
//   - user_roles: User to role assignments
//   - passports: Credential bindings, unique per (user, protocol) and (protocol, identifier)
//   - bootstrap: Sentinel row claimed by the first registered user
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	store := gormstore.NewStore(db)
//	store.SeedRoles(ctx, "admin", "member")
package gorm
