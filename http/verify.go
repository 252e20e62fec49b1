package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/passgate/passgate/gate"
	"github.com/passgate/passgate/logger"
)

// VerifyRequest is the POST /v1/verify body.
type VerifyRequest struct {
	Token       string `json:"token"`
	OwnerID     string `json:"owner_id"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// VerifyResponse is the POST /v1/verify success body.
type VerifyResponse struct {
	Success          bool      `json:"success"`
	OwnerID          string    `json:"owner_id"`
	TargetURL        string    `json:"target_url"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingMinutes int       `json:"remaining_minutes"`
}

// handleVerifyRedirect serves the redirect-preferred flow: browsers land
// here from emailed or embedded links, so every outcome is a 302 — to the
// resolved destination on success, to the failure page with a reason code
// otherwise.
func handleVerifyRedirect(props *HandlerProperties) http.HandlerFunc {
	core := props.Core
	log := props.Logger

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		token := q.Get("token")
		ownerID := q.Get("owner_id")
		candidate := q.Get("redirect")

		result := core.Verify(r.Context(), token, ownerID)
		if result.Outcome != gate.OutcomeSuccess {
			redirectFailure(w, r, props.FailureURL, result.Outcome)
			return
		}

		res := core.Resolver().Resolve(candidate, result.Record)

		if props.ProxyMode {
			proxyDestination(w, r, res.URL, log)
			return
		}
		http.Redirect(w, r, res.URL.String(), http.StatusFound)
	}
}

// handleVerifyJSON serves the JSON-preferred flow used by backend
// callers. The resolved target URL is reported in the body; the caller
// navigates itself.
func handleVerifyJSON(props *HandlerProperties) http.HandlerFunc {
	core := props.Core

	return func(w http.ResponseWriter, r *http.Request) {
		// A malformed body yields empty parameters; the engine reports
		// which one is missing.
		req := parseVerifyRequest(r)

		result := core.Verify(r.Context(), req.Token, req.OwnerID)
		if result.Outcome != gate.OutcomeSuccess {
			respondOutcomeError(w, result.Outcome.HTTPStatus(),
				string(result.Outcome), result.Outcome.Message())
			return
		}

		res := core.Resolver().Resolve(req.RedirectURL, result.Record)

		respondOk(w, &VerifyResponse{
			Success:          true,
			OwnerID:          result.Record.OwnerID,
			TargetURL:        res.URL.String(),
			IssuedAt:         result.Record.IssuedAt,
			ExpiresAt:        result.Record.ExpiresAt,
			RemainingMinutes: result.RemainingMinutes,
		})
	}
}

// parseVerifyRequest accepts a JSON body or form-encoded fields. Parse
// failures are not reported here; the fields just come back empty.
func parseVerifyRequest(r *http.Request) *VerifyRequest {
	if r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return &VerifyRequest{}
		}
		return &VerifyRequest{
			Token:       r.PostFormValue("token"),
			OwnerID:     r.PostFormValue("owner_id"),
			RedirectURL: r.PostFormValue("redirect_url"),
		}
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return &VerifyRequest{}
	}
	return &req
}

// redirectFailure sends the browser to the failure page with the outcome
// code in the reason parameter.
func redirectFailure(w http.ResponseWriter, r *http.Request, failureURL string, outcome gate.Outcome) {
	dest, err := url.Parse(failureURL)
	if err != nil {
		respondOutcomeError(w, outcome.HTTPStatus(), string(outcome), outcome.Message())
		return
	}

	q := dest.Query()
	q.Set("reason", string(outcome))
	dest.RawQuery = q.Encode()

	http.Redirect(w, r, dest.String(), http.StatusFound)
}

// proxyDestination fetches the resolved URL server-side and re-serves the
// body. Strictly a transport strategy for callers that cannot follow
// redirects; the verification decision is already made.
func proxyDestination(w http.ResponseWriter, r *http.Request, dest *url.URL, log logger.Logger) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, dest.String(), nil)
	if err != nil {
		respondError(w, http.StatusBadGateway, "destination could not be fetched")
		return
	}

	resp, err := cleanhttp.DefaultClient().Do(req)
	if err != nil {
		if log != nil {
			log.Warn("proxy fetch failed", logger.Err(err))
		}
		respondError(w, http.StatusBadGateway, "destination could not be fetched")
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
