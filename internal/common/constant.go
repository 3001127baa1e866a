// Package common contains shared constants and sentinel errors used across
// PinVault components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the session
// token on outbound requests.
const AccessTokenHeaderName = "access_token"

// ResetPurpose is the purpose claim of a password-reset token.
const ResetPurpose = "reset"
