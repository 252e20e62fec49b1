package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrUnauthorized is returned when the gate rejects the configured
	// bearer credential.
	ErrUnauthorized = errors.New("credential was not accepted")

	// ErrNotFound is returned when no revocable record exists at the
	// given (owner, token) key, or the credential may not see it.
	ErrNotFound = errors.New("no such token record")
)

// RevokeRequest is the input to the revocation call.
type RevokeRequest struct {
	Token   string `json:"token"`
	OwnerID string `json:"owner_id"`
}

// RevokeResult reports a completed revocation.
type RevokeResult struct {
	Success   bool      `json:"success"`
	OwnerID   string    `json:"owner_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Revoke marks the token revoked using the client's bearer credential.
func (c *Client) Revoke(ctx context.Context, req *RevokeRequest) (*RevokeResult, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/revoke", req)
	if err != nil {
		return nil, err
	}

	c.modifyLock.RLock()
	credential := c.credential
	c.modifyLock.RUnlock()
	if credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.config.HttpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("revocation request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("revocation failed with status %d", resp.StatusCode)
	}

	var result RevokeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not decode revocation response: %w", err)
	}
	return &result, nil
}
