// Command hashpw produces the bcrypt hash used for ADMIN_PASSWORD_HASH.
//
// Usage:
//
//	hashpw hash            prompt for a password twice, print its hash
//	hashpw verify [hash]   prompt for a password, check it against hash
//	                       (or $ADMIN_PASSWORD_HASH)
//
// Prompts are written to stderr and the hash to stdout, so it can be
// captured directly:
//
//	export ADMIN_PASSWORD_HASH="$(hashpw hash)"
//
// HASHPW_COST sets the bcrypt cost (default 10). Passwords shorter than
// eight characters are refused.
package main
