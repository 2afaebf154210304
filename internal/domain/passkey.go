package domain

import "time"

// Passkey represents one registered WebAuthn credential. CredentialID is
// the authenticator-assigned credential ID in base64url (no padding), which
// is also how clients reference it in assertion responses. PublicKey is the
// COSE public key, base64url encoded.
type Passkey struct {
	CredentialID string   `json:"credential_id" bson:"_id"`
	UserID       UserID   `json:"user_id" bson:"user_id"`
	PublicKey    string   `json:"public_key" bson:"public_key"`
	Counter      uint32   `json:"counter" bson:"counter"`
	Transports   []string `json:"transports,omitempty" bson:"transports,omitempty"`
	RPID         string   `json:"rp_id" bson:"rp_id"`

	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty" bson:"last_used,omitempty"`
}
