package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// VerifyRequest is the input to the verification call.
type VerifyRequest struct {
	Token       string `json:"token"`
	OwnerID     string `json:"owner_id"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// VerifyResult is the gate's answer. On rejection Success is false and
// ErrorCode carries the stable outcome code.
type VerifyResult struct {
	Success          bool      `json:"success"`
	OwnerID          string    `json:"owner_id,omitempty"`
	TargetURL        string    `json:"target_url,omitempty"`
	IssuedAt         time.Time `json:"issued_at,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	RemainingMinutes int       `json:"remaining_minutes,omitempty"`
	ErrorCode        string    `json:"error,omitempty"`
	Message          string    `json:"message,omitempty"`
}

// Verify checks the token through the JSON-preferred endpoint. A
// rejected token is not a transport error: the result reports the
// outcome and the error return covers transport and server failures
// only.
func (c *Client) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/verify", req)
	if err != nil {
		return nil, err
	}

	resp, err := c.config.HttpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	var result VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not decode verification response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("gate reported an internal failure: %s", result.Message)
	}
	return &result, nil
}
