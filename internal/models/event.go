package models

import "time"

type EventType string

const (
	EventUserRegistered         EventType = "user.registered"
	EventUserVerified           EventType = "user.verified"
	EventUserAccountTypeChanged EventType = "user.account_type_changed"
	EventUserDeleted            EventType = "user.deleted"
	EventMerchantRegistered     EventType = "merchant.registered"
)

// UserEvent is published to the user-events topic, keyed by email.
type UserEvent struct {
	Type        EventType   `json:"type"`
	Email       string      `json:"email"`
	UID         string      `json:"uid,omitempty"`
	AccountType AccountType `json:"accountType,omitempty"`
	OccurredAt  time.Time   `json:"occurredAt"`
}
