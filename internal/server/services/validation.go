package services

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/trustelem/zxcvbn"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/server/models"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
	// zxcvbn score 3 is "safely unguessable".
	minPasswordScore = 3
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)
	otpPattern      = regexp.MustCompile(`^[0-9]{6}$`)
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Gender   string `json:"gender"`
}

func (r *RegisterRequest) normalize() {
	r.Email = normalizeEmail(r.Email)
	r.Username = strings.TrimSpace(r.Username)
	r.Gender = strings.ToLower(strings.TrimSpace(r.Gender))
}

func (r RegisterRequest) validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Username, validation.Required,
			validation.Match(usernamePattern).Error("must be 3-50 letters, digits or underscores")),
		validation.Field(&r.Password, validation.Required,
			validation.Length(minPasswordLength, maxPasswordLength),
			// email and username count as known words, so reusing them scores low.
			validation.By(strongPassword(r.Email, r.Username))),
		validation.Field(&r.Gender, validation.Required,
			validation.By(knownGender)),
	)
	return toValidationError(err)
}

func strongPassword(userInputs ...string) validation.RuleFunc {
	return func(value interface{}) error {
		pw, _ := value.(string)
		if len(pw) < minPasswordLength {
			return nil
		}
		if zxcvbn.PasswordStrength(pw, userInputs).Score < minPasswordScore {
			return errors.New("is too easy to guess")
		}
		return nil
	}
}

func knownGender(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := models.ParseGender(s); err != nil {
		return errors.New("must be one of male, female, other")
	}
	return nil
}

type credentials struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func validateEmail(email string) error {
	c := credentials{Email: email}
	return toValidationError(validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
	))
}

func validateVerification(email, code string) error {
	c := credentials{Email: email, Code: code}
	return toValidationError(validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Code, validation.Required,
			validation.Match(otpPattern).Error("must be 6 digits")),
	))
}

// toValidationError turns ozzo field errors into the client-visible
// common.ValidationError. Internal rule failures stay internal.
func toValidationError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return errors.Join(common.ErrInternal, err)
	}

	out := &common.ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for field, ferr := range fieldErrs {
		if ferr != nil {
			out.Fields[field] = ferr.Error()
		}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
