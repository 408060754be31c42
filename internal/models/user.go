package models

import "time"

type AccountType string

const (
	AccountTypeClient       AccountType = "client"
	AccountTypeProfessional AccountType = "professional"
)

// ParseAccountType accepts only the recognized account types, exact match.
func ParseAccountType(s string) (AccountType, bool) {
	switch AccountType(s) {
	case AccountTypeClient, AccountTypeProfessional:
		return AccountType(s), true
	}
	return "", false
}

type VerificationState string

const (
	StateUnregistered        VerificationState = "UNREGISTERED"
	StatePendingVerification VerificationState = "PENDING_VERIFICATION"
	StateVerified            VerificationState = "VERIFIED"
)

type Location struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// User is the single authoritative record per email. The email is the key
// (the document id in mongo, the primary key in postgres).
type User struct {
	Email        string      `json:"email" bson:"_id"`
	UID          string      `json:"uid" bson:"uid"`
	Username     string      `json:"username" bson:"username"`
	PasswordHash string      `json:"-" bson:"password_hash"` // не отдаём наружу
	IsVerified   bool        `json:"isVerified" bson:"is_verified"`
	AccountType  AccountType `json:"accountType" bson:"account_type"`
	Location     *Location   `json:"location,omitempty" bson:"location,omitempty"`

	// set together while pending, cleared together once consumed or expired
	VerificationCode          *string    `json:"-" bson:"verification_code,omitempty"`
	VerificationCodeExpiresAt *time.Time `json:"-" bson:"verification_code_expires_at,omitempty"`

	CreatedAt  time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" bson:"updated_at"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty" bson:"verified_at,omitempty"`
}

func (u *User) State() VerificationState {
	switch {
	case u == nil:
		return StateUnregistered
	case u.IsVerified:
		return StateVerified
	default:
		return StatePendingVerification
	}
}

func (u *User) HasPendingCode() bool {
	return u != nil && !u.IsVerified && u.VerificationCode != nil && u.VerificationCodeExpiresAt != nil
}

// Summary is what a client may see about an account.
type Summary struct {
	Email       string      `json:"email"`
	Username    string      `json:"username"`
	AccountType AccountType `json:"accountType"`
}

func (u *User) Summary() Summary {
	return Summary{Email: u.Email, Username: u.Username, AccountType: u.AccountType}
}

type SignupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type VerifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AccountTypeRequest struct {
	Email       string `json:"email" binding:"required"`
	AccountType string `json:"accountType" binding:"required"`
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}
