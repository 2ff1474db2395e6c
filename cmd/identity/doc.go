// Package identity holds the user records behind every sign-in method:
// email/password credentials, passwordless contacts (email or phone),
// third-party account links and password-reset tokens.
//
// Two Store implementations exist: PostgresStore for deployments and
// MemoryStore for local runs and tests.
package identity
