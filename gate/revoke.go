package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/passgate/passgate/logger"
)

var (
	// ErrUnauthorized is returned when no acceptable bearer credential
	// accompanies a revocation request.
	ErrUnauthorized = errors.New("a valid bearer credential is required")

	// ErrMissingParameters is returned when token or owner id are
	// absent from a revocation request.
	ErrMissingParameters = errors.New("token and owner id are required")
)

// Credential is a configured bearer secret accepted by the revocation
// endpoint. Non-admin credentials are bound to a single owner partition.
type Credential struct {
	Name    string
	Token   string
	OwnerID string
	Admin   bool
}

// CredentialSet resolves presented bearer secrets to credentials.
type CredentialSet struct {
	creds []Credential
}

// NewCredentialSet builds a credential set from configuration.
func NewCredentialSet(creds []Credential) *CredentialSet {
	return &CredentialSet{creds: creds}
}

// Lookup returns the credential matching the presented bearer secret,
// or nil. Comparison is constant-time per candidate.
func (s *CredentialSet) Lookup(bearer string) *Credential {
	if bearer == "" {
		return nil
	}
	for i := range s.creds {
		if subtle.ConstantTimeCompare([]byte(s.creds[i].Token), []byte(bearer)) == 1 {
			return &s.creds[i]
		}
	}
	return nil
}

// Len reports the number of configured credentials.
func (s *CredentialSet) Len() int {
	return len(s.creds)
}

// Revoke flags the record as revoked. The caller's identity must own the
// token's partition (or be admin); cross-tenant attempts report not
// found so that one tenant cannot probe another's token space.
// Revoking an already-revoked token succeeds without modifying it.
func (c *Core) Revoke(ctx context.Context, token, ownerID string, caller *Credential) (*Record, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	if token == "" || ownerID == "" {
		return nil, ErrMissingParameters
	}
	if !caller.Admin && caller.OwnerID != ownerID {
		c.logger.Warn("cross-tenant revocation attempt",
			logger.String("credential", caller.Name),
			logger.String("owner_id", ownerID))
		return nil, ErrRecordNotFound
	}

	rec, err := c.store.GetExact(ctx, ownerID, token)
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrIncompleteRecord):
			return nil, ErrRecordNotFound
		default:
			c.metrics.IncrementStoreErrors()
			return nil, fmt.Errorf("revocation lookup failed: %w", err)
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, ErrRecordNotFound
	}

	if rec.Revoked {
		return rec, nil
	}

	now := timeNow()
	rec.Revoked = true
	rec.RevokedAt = &now

	if err := c.store.Replace(ctx, rec); err != nil {
		if errors.Is(err, ErrConflict) {
			// A concurrent revocation got there first. The effect is
			// idempotent, so report what landed.
			current, rerr := c.store.GetExact(ctx, ownerID, token)
			if rerr == nil && current.Revoked {
				return current, nil
			}
			return nil, fmt.Errorf("revocation lost a concurrent update: %w", err)
		}
		if errors.Is(err, ErrRecordNotFound) {
			// Swept between read and write; a gone record cannot grant
			// access, which is what revocation wanted.
			return nil, ErrRecordNotFound
		}
		c.metrics.IncrementStoreErrors()
		return nil, fmt.Errorf("revocation update failed: %w", err)
	}

	c.metrics.IncrementTokensRevoked()
	c.logger.Info("token revoked",
		logger.String("owner_id", ownerID),
		logger.String("credential", caller.Name))
	return rec, nil
}
