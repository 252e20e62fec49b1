package gate

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/passgate/passgate/logger"
)

const fallbackErrorMarker = "destination_rejected"

// Resolution is the outcome of resolving a redirect destination.
type Resolution struct {
	URL *url.URL

	// FellBack is set when the requested destination was unusable
	// (unparseable or outside the origin allow-list) and the safe
	// default was substituted.
	FellBack bool
}

// Resolver builds and sanitizes the final redirect destination. The
// origin allow-list is the open-redirect defense: a destination whose
// origin is not on the list is silently replaced by the configured
// fallback, and the caller cannot bypass that.
type Resolver struct {
	allowedOrigins []string
	fallback       *url.URL
	logger         logger.Logger
	metrics        *Metrics
}

// NewResolver constructs a resolver from the configured origin
// allow-list and fallback destination. The fallback's own origin does
// not need to be on the list; it is trusted by configuration.
func NewResolver(allowedOrigins []string, fallbackURL string, log logger.Logger, metrics *Metrics) (*Resolver, error) {
	fallback, err := url.Parse(fallbackURL)
	if err != nil {
		return nil, fmt.Errorf("invalid fallback url: %w", err)
	}
	if !fallback.IsAbs() {
		return nil, fmt.Errorf("fallback url %q must be absolute", fallbackURL)
	}

	normalized := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("invalid allowed origin %q", origin)
		}
		normalized = append(normalized, normalizeOrigin(u))
	}

	return &Resolver{
		allowedOrigins: normalized,
		fallback:       fallback,
		logger:         log,
		metrics:        metrics,
	}, nil
}

// normalizeOrigin reduces a URL to its comparable origin form:
// lowercased scheme and host, explicit port preserved. Comparing whole
// origins (not prefixes of the URL string) defeats subdomain spoofs and
// path-prefix tricks.
func normalizeOrigin(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

func (r *Resolver) originAllowed(u *url.URL) bool {
	return strutil.StrListContains(r.allowedOrigins, normalizeOrigin(u))
}

// AllowedOrigins returns the normalized allow-list. The response
// formatter shares it for CORS negotiation.
func (r *Resolver) AllowedOrigins() []string {
	return r.allowedOrigins
}

// Resolve picks the redirect destination for a successful verification.
// The caller-supplied candidate wins over the record's target when
// present; either way the destination must parse as an absolute http(s)
// URL with an allow-listed origin or the fallback is used. The final URL
// always carries the verification claims as query parameters.
func (r *Resolver) Resolve(candidateURL string, rec *Record) *Resolution {
	chosen := candidateURL
	if chosen == "" {
		chosen = rec.TargetURL
	}

	dest, fellBack := r.sanitize(chosen)
	if fellBack && r.metrics != nil {
		r.metrics.IncrementFallbacksUsed()
	}

	q := dest.Query()
	q.Set("validated_token", rec.Token)
	q.Set("owner_id", rec.OwnerID)
	q.Set("expires_at", rec.ExpiresAt.UTC().Format(time.RFC3339))
	if fellBack {
		q.Set("error", fallbackErrorMarker)
	}
	dest.RawQuery = q.Encode()

	return &Resolution{URL: dest, FellBack: fellBack}
}

func (r *Resolver) sanitize(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		if r.logger != nil {
			r.logger.Debug("unparseable redirect destination, using fallback",
				logger.String("destination", raw))
		}
		fallback := *r.fallback
		return &fallback, true
	}

	if !r.originAllowed(u) {
		if r.logger != nil {
			r.logger.Warn("redirect destination outside origin allow-list, using fallback",
				logger.String("origin", normalizeOrigin(u)))
		}
		fallback := *r.fallback
		return &fallback, true
	}

	return u, false
}
