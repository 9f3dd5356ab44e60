package httpapi

import (
	"crypto/subtle"
	"net/http"

	zlog "github.com/rs/zerolog/log"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"
)

// requireAdmin validates the admin token of mutating requests.
// With no token configured the wrapped endpoints are disabled.
func requireAdmin(adminToken string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if adminToken == "" {
			writeError(w, http.StatusForbidden, "admin endpoints are disabled")
			return
		}

		token := r.Header.Get(AdminTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			zlog.Warn().Msgf("rejected admin request: path=%s remote=%s", r.URL.Path, r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}

		next(w, r)
	}
}
