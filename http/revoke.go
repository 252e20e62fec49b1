package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/passgate/passgate/gate"
	"github.com/passgate/passgate/logger"
)

// RevokeRequest is the POST /v1/revoke body.
type RevokeRequest struct {
	Token   string `json:"token"`
	OwnerID string `json:"owner_id"`
}

// RevokeResponse is the POST /v1/revoke success body.
type RevokeResponse struct {
	Success   bool      `json:"success"`
	OwnerID   string    `json:"owner_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

// handleRevoke authenticates the bearer credential and delegates to the
// engine. Authentication failures answer 401 before any store access;
// records the caller may not see answer 404 exactly like records that do
// not exist.
func handleRevoke(props *HandlerProperties) http.HandlerFunc {
	core := props.Core
	log := props.Logger

	return func(w http.ResponseWriter, r *http.Request) {
		caller := core.Credentials().Lookup(bearerToken(r))
		if caller == nil {
			respondOutcomeError(w, http.StatusUnauthorized,
				"unauthorized", "a valid bearer credential is required")
			return
		}

		var req RevokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			respondOutcomeError(w, http.StatusBadRequest,
				"missing_parameters", "request body could not be parsed")
			return
		}

		rec, err := core.Revoke(r.Context(), req.Token, req.OwnerID, caller)
		if err != nil {
			switch {
			case errors.Is(err, gate.ErrMissingParameters):
				respondOutcomeError(w, http.StatusBadRequest,
					"missing_parameters", err.Error())
			case errors.Is(err, gate.ErrRecordNotFound):
				respondOutcomeError(w, http.StatusNotFound,
					"not_found", "no such token record")
			default:
				if log != nil {
					log.Error("revocation failed", logger.Err(err))
				}
				respondError(w, http.StatusInternalServerError,
					"revocation could not be completed")
			}
			return
		}

		resp := &RevokeResponse{
			Success: true,
			OwnerID: rec.OwnerID,
		}
		if rec.RevokedAt != nil {
			resp.RevokedAt = *rec.RevokedAt
		}
		respondOk(w, resp)
	}
}

// bearerToken extracts the secret from the Authorization header, or
// returns empty.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
