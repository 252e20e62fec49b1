package http

import (
	"net/http"

	"github.com/hashicorp/go-secure-stdlib/strutil"
)

// setCORSHeaders negotiates the response origin. An Origin header that
// exactly matches the allow-list is echoed back; anything else gets the
// first configured origin, so an untrusted page can never read the
// response. Applies to every response, preflight included.
func setCORSHeaders(w http.ResponseWriter, r *http.Request, allowedOrigins []string) {
	if len(allowedOrigins) == 0 {
		return
	}

	allowed := allowedOrigins[0]
	if origin := r.Header.Get("Origin"); strutil.StrListContains(allowedOrigins, origin) {
		allowed = origin
	}

	w.Header().Set("Access-Control-Allow-Origin", allowed)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Vary", "Origin")
}
