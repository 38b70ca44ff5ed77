package rest

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/logging"
	"github.com/dmitrijs2005/linksphere/internal/server/auth"
)

// TokenDecoder validates an access token. auth.Issuer implements it.
type TokenDecoder interface {
	Decode(token string) (*auth.Claims, error)
}

// Guard admits requests carrying a valid "Authorization: Bearer" access token
// and attaches the caller's identity to the request context. It never touches
// the database.
func Guard(tokens TokenDecoder, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, common.ErrUnauthorized)
				return
			}

			claims, err := tokens.Decode(token)
			if err != nil {
				log.Warn(r.Context(), "access token rejected", "error", err, "path", r.URL.Path)
				writeError(w, common.ErrInvalidToken)
				return
			}

			ctx := auth.WithIdentity(r.Context(), claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if len(h) < len(common.BearerPrefix) || !strings.EqualFold(h[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(common.BearerPrefix):])
	return token, token != ""
}
