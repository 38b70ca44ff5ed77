package common

const (
	// AuthorizationHeaderName carries the bearer access token.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix is the scheme prefix expected in AuthorizationHeaderName.
	BearerPrefix = "Bearer "

	// AdminSecretHeaderName carries the shared admin secret for maintenance endpoints.
	AdminSecretHeaderName = "X-Admin-Secret"
)
