// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is one registered user. The server never sees the master password
// or the encryption key; AuthKeyHash is a bcrypt hash of the client's AuthKey.
type Account struct {
	ID             string
	Email          string
	KDFSalt        []byte
	AuthKeyHash    string
	BackupEnvelope []byte

	// Pending recovery state. OtpHash is SHA-256 of the emailed code.
	OtpHash      []byte
	OtpExpiresAt *time.Time
	// ResetNonce is the jti of the only reset token that may still be redeemed.
	ResetNonce *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credentials is the set of fields replaced together on password change and
// recovery.
type Credentials struct {
	KDFSalt        []byte
	AuthKeyHash    string
	BackupEnvelope []byte
}
