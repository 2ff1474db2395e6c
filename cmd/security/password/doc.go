// Package password hashes and checks user passwords.
//
// Hashes are Argon2id in the PHC string form
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>.
// The acceptance rule for new passwords (length, letters and digits) lives
// here too, so handlers and the identity store agree on it.
package password
