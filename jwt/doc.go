// Package jwt manages issuance and verification of the three token kinds the
// engine mints: access tokens, MFA challenge tokens, and remembered-device
// capabilities. Challenge and remember tokens carry an explicit purpose claim
// so they can never be replayed on the access path.
package jwt
