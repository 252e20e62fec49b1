package gate

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/passgate/passgate/logger"
)

// Outcome is the stable machine-readable result of a verification. The
// values double as wire codes in both the JSON error field and the
// failure-redirect reason parameter.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeMissingToken  Outcome = "missing_token"
	OutcomeMissingOwner  Outcome = "missing_owner"
	OutcomeInvalidToken  Outcome = "invalid"
	OutcomeInvalidSchema Outcome = "invalid_schema"
	OutcomeRevoked       Outcome = "revoked"
	OutcomeExpired       Outcome = "expired"
	OutcomeError         Outcome = "error"
)

// Message returns the human-readable description paired with the code.
func (o Outcome) Message() string {
	switch o {
	case OutcomeSuccess:
		return "token verified"
	case OutcomeMissingToken:
		return "a token must be provided"
	case OutcomeMissingOwner:
		return "an owner id must be provided"
	case OutcomeInvalidToken:
		return "token is not valid"
	case OutcomeInvalidSchema:
		return "token record is not usable"
	case OutcomeRevoked:
		return "token has been revoked"
	case OutcomeExpired:
		return "token has expired"
	case OutcomeError:
		return "verification could not be completed"
	default:
		return string(o)
	}
}

// HTTPStatus maps the outcome to its JSON-mode status code: 400 for
// malformed requests, 401 for rejected tokens, 500 for infrastructure
// failure.
func (o Outcome) HTTPStatus() int {
	switch o {
	case OutcomeSuccess:
		return http.StatusOK
	case OutcomeMissingToken, OutcomeMissingOwner:
		return http.StatusBadRequest
	case OutcomeInvalidToken, OutcomeInvalidSchema, OutcomeRevoked, OutcomeExpired:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Result is the outcome of one verification. Record and
// RemainingMinutes are populated only on success.
type Result struct {
	Outcome          Outcome
	Record           *Record
	RemainingMinutes int
}

// Verify decides whether the presented token grants access. The checks
// run in strict short-circuit order: parameters, exact lookup, schema,
// revocation, expiration. Exactly one store read happens per call;
// observing an expired record additionally fires the asynchronous sweep.
// Infrastructure failure is reported as OutcomeError, never as an
// invalid token.
func (c *Core) Verify(ctx context.Context, token, ownerID string) *Result {
	if token == "" {
		c.metrics.IncrementVerifyRejections()
		return &Result{Outcome: OutcomeMissingToken}
	}
	if ownerID == "" {
		c.metrics.IncrementVerifyRejections()
		return &Result{Outcome: OutcomeMissingOwner}
	}

	rec, err := c.store.GetExact(ctx, ownerID, token)
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			c.metrics.IncrementVerifyRejections()
			return &Result{Outcome: OutcomeInvalidToken}
		case errors.Is(err, ErrIncompleteRecord):
			c.metrics.IncrementVerifyRejections()
			return &Result{Outcome: OutcomeInvalidSchema}
		default:
			c.metrics.IncrementStoreErrors()
			c.logger.Error("token lookup failed",
				logger.String("owner_id", ownerID),
				logger.Err(err))
			return &Result{Outcome: OutcomeError}
		}
	}

	if err := rec.Validate(); err != nil {
		c.metrics.IncrementVerifyRejections()
		c.logger.Debug("token record failed schema check",
			logger.String("owner_id", ownerID),
			logger.Err(err))
		return &Result{Outcome: OutcomeInvalidSchema}
	}

	// Revocation wins over expiration: a token that is both reports
	// revoked.
	if rec.Revoked {
		c.metrics.IncrementVerifyRejections()
		return &Result{Outcome: OutcomeRevoked}
	}

	now := timeNow()
	if rec.ExpiredAt(now) {
		c.metrics.IncrementTokensExpired()
		c.sweeper.SweepAsync(ownerID, token)
		return &Result{Outcome: OutcomeExpired}
	}

	c.metrics.IncrementTokensVerified()
	return &Result{
		Outcome:          OutcomeSuccess,
		Record:           rec,
		RemainingMinutes: remainingMinutes(rec.ExpiresAt, now),
	}
}

func remainingMinutes(expiresAt, now time.Time) int {
	return int(math.Round(expiresAt.Sub(now).Minutes()))
}
