// Package authcore verifies user credentials and issues bearer session tokens.
//
// A User is one logical identity. Each way a user can sign in is a Passport:
// the "local" passport for username/password logins, and one passport per
// third-party provider. Roles are seeded by the operator and only attached
// here; the first user to register gets the admin role.
//
// # Operations
//
//   - LocalAuth.AuthenticateLocal checks an identifier (username or email) and password.
//   - ProviderAuth.AuthenticateProvider exchanges a provider access token for a session.
//   - Registration.Register creates a local user.
//   - PasswordReset.RequestPasswordReset mails a single-use reset code;
//     PasswordReset.ResetPassword redeems it.
//
// Every operation fails with an *AuthError whose Kind is one of KindBadRequest,
// KindAuthFailed, KindNotFound, KindConflict or KindInternal.
//
// # Basic Usage
//
//	cfg, _ := authcore.LoadConfig()
//	store := fs.NewStore(cfg.StoragePath)
//	server := authcore.NewAuthServer(cfg, store, &authcore.ConsoleEmailSender{}, nil)
//	http.ListenAndServe(cfg.ListenAddr, server.Handler())
//
// Stores live under stores/: fs (JSON files), gorm (any SQL database gorm
// supports) and gae (Cloud Datastore). Sessions can be kept in Redis with
// stores/redisstore.
package authcore
