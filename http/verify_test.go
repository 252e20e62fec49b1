package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/passgate/passgate/gate"
	"github.com/passgate/passgate/physical/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler(t *testing.T) (http.Handler, *gate.Core, *inmem.TransactionalInmemStorage) {
	t.Helper()

	storage, err := inmem.NewInmem(nil, nil)
	require.NoError(t, err)

	core, err := gate.NewCore(&gate.CoreConfig{
		Storage:        storage,
		AllowedOrigins: []string{"https://app.example", "http://localhost:3000"},
		FallbackURL:    "https://app.example/welcome",
		Credentials: []gate.Credential{
			{Name: "ops", Token: "s3cret", OwnerID: "t1"},
			{Name: "root", Token: "r00t", Admin: true},
		},
	})
	require.NoError(t, err)

	handler := Handler(&HandlerProperties{
		Core:       core,
		FailureURL: "https://app.example/failed",
	})
	return handler, core, storage.(*inmem.TransactionalInmemStorage)
}

func seedRecord(t *testing.T, core *gate.Core, ttl time.Duration) *gate.Record {
	t.Helper()
	now := time.Now()
	rec := &gate.Record{
		OwnerID:   "t1",
		Token:     "deadbeefdeadbeefdeadbeefdeadbeef",
		TargetURL: "https://app.example/act",
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	require.NoError(t, core.Store().Put(context.Background(), rec))
	return rec
}

func TestVerifyGET_SuccessRedirects(t *testing.T) {
	handler, core, _ := testHandler(t)
	rec := seedRecord(t, core, time.Hour)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/verify?token="+rec.Token+"&owner_id="+rec.OwnerID, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example", loc.Host)
	assert.Equal(t, "/act", loc.Path)

	q := loc.Query()
	assert.Equal(t, rec.Token, q.Get("validated_token"))
	assert.Equal(t, rec.OwnerID, q.Get("owner_id"))
	assert.NotEmpty(t, q.Get("expires_at"))

	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
}

func TestVerifyGET_DisallowedRedirectFallsBack(t *testing.T) {
	handler, core, _ := testHandler(t)
	rec := seedRecord(t, core, time.Hour)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/verify?token="+rec.Token+"&owner_id="+rec.OwnerID+
			"&redirect="+url.QueryEscape("https://evil.example/steal"), nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/welcome", loc.Path)
	assert.Equal(t, "destination_rejected", loc.Query().Get("error"))
}

func TestVerifyGET_FailureRedirectsWithReason(t *testing.T) {
	handler, core, _ := testHandler(t)
	seedRecord(t, core, time.Hour)

	cases := []struct {
		name   string
		target string
		reason string
	}{
		{"missing token", "/v1/verify?owner_id=t1", "missing_token"},
		{"missing owner", "/v1/verify?token=abc", "missing_owner"},
		{"unknown token", "/v1/verify?token=abc&owner_id=t1", "invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, http.StatusFound, w.Code)
			loc, err := url.Parse(w.Header().Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, "/failed", loc.Path)
			assert.Equal(t, tc.reason, loc.Query().Get("reason"))
		})
	}
}

func TestVerifyGET_ExpiredRedirectsWithReason(t *testing.T) {
	handler, core, _ := testHandler(t)
	rec := seedRecord(t, core, -time.Minute)

	req := httptest.NewRequest(http.MethodGet,
		"/v1/verify?token="+rec.Token+"&owner_id="+rec.OwnerID, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "expired", loc.Query().Get("reason"))
	core.Sweeper().Wait()
}

func TestVerifyPOST_Success(t *testing.T) {
	handler, core, _ := testHandler(t)
	rec := seedRecord(t, core, time.Hour)

	body, _ := json.Marshal(&VerifyRequest{Token: rec.Token, OwnerID: rec.OwnerID})
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, rec.OwnerID, resp.OwnerID)
	assert.InDelta(t, 60, resp.RemainingMinutes, 1)

	target, err := url.Parse(resp.TargetURL)
	require.NoError(t, err)
	assert.Equal(t, rec.Token, target.Query().Get("validated_token"))
}

func TestVerifyPOST_FormEncoded(t *testing.T) {
	handler, core, _ := testHandler(t)
	rec := seedRecord(t, core, time.Hour)

	form := url.Values{"token": {rec.Token}, "owner_id": {rec.OwnerID}}
	req := httptest.NewRequest(http.MethodPost, "/v1/verify",
		bytes.NewReader([]byte(form.Encode())))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerifyPOST_Failures(t *testing.T) {
	handler, core, storage := testHandler(t)
	rec := seedRecord(t, core, time.Hour)

	cases := []struct {
		name    string
		body    *VerifyRequest
		prepare func()
		status  int
		code    string
	}{
		{"missing token", &VerifyRequest{OwnerID: "t1"}, nil,
			http.StatusBadRequest, "missing_token"},
		{"missing owner", &VerifyRequest{Token: "abc"}, nil,
			http.StatusBadRequest, "missing_owner"},
		{"unknown token", &VerifyRequest{Token: "abc", OwnerID: "t1"}, nil,
			http.StatusUnauthorized, "invalid"},
		{"store failure", &VerifyRequest{Token: rec.Token, OwnerID: rec.OwnerID},
			func() { storage.FailGet(true) },
			http.StatusInternalServerError, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.prepare != nil {
				tc.prepare()
				defer storage.FailGet(false)
			}

			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader(body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tc.code, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestHandler_PathOutsideV1(t *testing.T) {
	handler, _, _ := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyGET_ProxyMode(t *testing.T) {
	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("validated_token"))
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "landing page")
	}))
	defer dest.Close()

	storage, err := inmem.NewInmem(nil, nil)
	require.NoError(t, err)

	core, err := gate.NewCore(&gate.CoreConfig{
		Storage:        storage,
		AllowedOrigins: []string{dest.URL},
		FallbackURL:    dest.URL + "/welcome",
	})
	require.NoError(t, err)

	handler := Handler(&HandlerProperties{
		Core:       core,
		FailureURL: dest.URL + "/failed",
		ProxyMode:  true,
	})

	now := time.Now()
	rec := &gate.Record{
		OwnerID:   "t1",
		Token:     "deadbeef",
		TargetURL: dest.URL + "/act",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, core.Store().Put(context.Background(), rec))

	req := httptest.NewRequest(http.MethodGet,
		"/v1/verify?token="+rec.Token+"&owner_id="+rec.OwnerID, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "landing page", w.Body.String())
}
