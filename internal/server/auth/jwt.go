package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the access-token payload: registered subject/exp/iat plus the
// account's email and username.
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Issuer signs and decodes HS256 access tokens with one shared secret.
type Issuer struct {
	secretKey []byte
	validity  time.Duration
	now       func() time.Time
}

func NewIssuer(secretKey []byte, validity time.Duration) *Issuer {
	return &Issuer{secretKey: secretKey, validity: validity, now: time.Now}
}

func (i *Issuer) Issue(a *models.Account) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.validity)),
		},
		Email:    a.Email,
		Username: a.Username,
	})

	s, err := token.SignedString(i.secretKey)
	if err != nil {
		return "", fmt.Errorf("%w: sign token: %v", common.ErrInternal, err)
	}
	return s, nil
}

// Decode validates signature, algorithm and expiry. Every failure matches
// common.ErrInvalidToken; the joined cause is for server logs only.
func (i *Issuer) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, errors.Join(common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, errors.Join(common.ErrInvalidToken, fmt.Errorf("subject: %w", err))
	}

	return claims, nil
}

// Identity converts decoded claims into the request identity.
func (c *Claims) Identity() Identity {
	id, _ := uuid.Parse(c.Subject)
	return Identity{AccountID: id, Email: c.Email, Username: c.Username}
}
