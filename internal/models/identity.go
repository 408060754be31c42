package models

import "time"

// Identity is the external account owned by the identity directory,
// linked to a User through UID.
type Identity struct {
	UID         string    `json:"uid" bson:"_id"`
	Email       string    `json:"email" bson:"email"`
	DisplayName string    `json:"displayName" bson:"display_name"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
}
