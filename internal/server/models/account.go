// Package models holds the server-side domain records persisted by the
// repositories and passed between services.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Gender is a closed set of values stored in the account_gender column.
type Gender int

const (
	GenderMale Gender = iota + 1
	GenderFemale
	GenderOther
)

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	case GenderOther:
		return "other"
	default:
		return fmt.Sprintf("gender(%d)", int(g))
	}
}

// ParseGender maps the lowercase wire/database form back to a Gender.
func ParseGender(s string) (Gender, error) {
	switch s {
	case "male":
		return GenderMale, nil
	case "female":
		return GenderFemale, nil
	case "other":
		return GenderOther, nil
	default:
		return 0, fmt.Errorf("unknown gender %q", s)
	}
}

func (g Gender) Valid() bool {
	_, err := ParseGender(g.String())
	return err == nil
}

func (g Gender) Value() (driver.Value, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("invalid gender %d", int(g))
	}
	return g.String(), nil
}

func (g *Gender) Scan(src any) error {
	s, err := scanText(src)
	if err != nil {
		return err
	}
	parsed, err := ParseGender(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

func (g Gender) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("invalid gender %d", int(g))
	}
	return []byte(g.String()), nil
}

func (g *Gender) UnmarshalText(b []byte) error {
	parsed, err := ParseGender(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Status is the account lifecycle state stored in the account_status column.
type Status int

const (
	StatusPendingVerification Status = iota + 1
	StatusActive
	StatusInactive
	StatusSuspended
)

func (s Status) String() string {
	switch s {
	case StatusPendingVerification:
		return "pending_verification"
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending_verification":
		return StatusPendingVerification, nil
	case "active":
		return StatusActive, nil
	case "inactive":
		return StatusInactive, nil
	case "suspended":
		return StatusSuspended, nil
	default:
		return 0, fmt.Errorf("unknown account status %q", s)
	}
}

func (s Status) Valid() bool {
	_, err := ParseStatus(s.String())
	return err == nil
}

func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid account status %d", int(s))
	}
	return s.String(), nil
}

func (s *Status) Scan(src any) error {
	text, err := scanText(src)
	if err != nil {
		return err
	}
	parsed, err := ParseStatus(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid account status %d", int(s))
	}
	return []byte(s.String()), nil
}

func scanText(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported enum source type %T", src)
	}
}

// Account is the identity record. IsVerified is true iff the account left
// StatusPendingVerification through a successful OTP check.
type Account struct {
	ID                   uuid.UUID
	Email                string
	Username             string
	PasswordHash         string
	Gender               Gender
	Status               Status
	IsVerified           bool
	VerificationAttempts int
	VerifiedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PublicAccount is the externally visible projection of Account; it never
// carries the password hash.
type PublicAccount struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	Gender     Gender     `json:"gender"`
	Status     Status     `json:"status"`
	IsVerified bool       `json:"is_verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (a *Account) Public() *PublicAccount {
	return &PublicAccount{
		ID:         a.ID,
		Email:      a.Email,
		Username:   a.Username,
		Gender:     a.Gender,
		Status:     a.Status,
		IsVerified: a.IsVerified,
		VerifiedAt: a.VerifiedAt,
		CreatedAt:  a.CreatedAt,
	}
}
