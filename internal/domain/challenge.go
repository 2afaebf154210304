package domain

import "time"

// ChallengeKind discriminates the two ceremony types a challenge can
// belong to. A challenge issued for one kind can never complete a
// ceremony of the other.
type ChallengeKind string

const (
	ChallengeRegistration   ChallengeKind = "registration"
	ChallengeAuthentication ChallengeKind = "authentication"
)

// Challenge is a single-use, short-lived ceremony challenge. Registration
// challenges are bound to the user they were issued for; authentication
// challenges are anonymous (the user is only known after the assertion is
// verified) and carry a zero UserID.
type Challenge struct {
	ID        string        `json:"id" bson:"_id"`
	UserID    UserID        `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Kind      ChallengeKind `json:"kind" bson:"kind"`
	Value     string        `json:"value" bson:"value"`
	ExpiresAt time.Time     `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
}

// IsExpired checks if the challenge has expired. An expired challenge is
// indistinguishable from an absent one to callers of the challenge store.
func (c *Challenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}
