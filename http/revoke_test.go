package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func revokeRequest(t *testing.T, body *RevokeRequest, bearer string) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/revoke", bytes.NewReader(raw))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func TestRevoke_Success(t *testing.T) {
	handler, core, _ := testHandler(t)
	rec := seedRecord(t, core, time.Hour)

	req := revokeRequest(t, &RevokeRequest{Token: rec.Token, OwnerID: rec.OwnerID}, "s3cret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp RevokeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, rec.OwnerID, resp.OwnerID)
	assert.False(t, resp.RevokedAt.IsZero())
}

func TestRevoke_Unauthorized(t *testing.T) {
	handler, core, _ := testHandler(t)
	rec := seedRecord(t, core, time.Hour)

	for _, bearer := range []string{"", "wrong", "S3CRET"} {
		req := revokeRequest(t, &RevokeRequest{Token: rec.Token, OwnerID: rec.OwnerID}, bearer)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "unauthorized", resp.Error)
	}
}

func TestRevoke_MissingParameters(t *testing.T) {
	handler, _, _ := testHandler(t)

	req := revokeRequest(t, &RevokeRequest{OwnerID: "t1"}, "r00t")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "missing_parameters", resp.Error)
}

func TestRevoke_UnknownTokenIsNotFound(t *testing.T) {
	handler, _, _ := testHandler(t)

	req := revokeRequest(t, &RevokeRequest{Token: "nope", OwnerID: "t1"}, "r00t")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevoke_CrossTenantIsNotFound(t *testing.T) {
	handler, core, _ := testHandler(t)
	rec := seedRecord(t, core, time.Hour)
	rec.OwnerID = "t2"
	require.NoError(t, core.Store().Put(context.Background(), rec))

	// t1's credential against t2's record: indistinguishable from a
	// record that does not exist.
	req := revokeRequest(t, &RevokeRequest{Token: rec.Token, OwnerID: "t2"}, "s3cret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevoke_ThenVerifyReportsRevoked(t *testing.T) {
	handler, core, _ := testHandler(t)
	rec := seedRecord(t, core, time.Hour)

	req := revokeRequest(t, &RevokeRequest{Token: rec.Token, OwnerID: rec.OwnerID}, "r00t")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	verify := httptest.NewRequest(http.MethodGet,
		"/v1/verify?token="+rec.Token+"&owner_id="+rec.OwnerID, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, verify)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "reason=revoked")
}

func TestRevoke_StoreFailure(t *testing.T) {
	handler, core, storage := testHandler(t)
	rec := seedRecord(t, core, time.Hour)

	storage.FailGet(true)
	defer storage.FailGet(false)

	req := revokeRequest(t, &RevokeRequest{Token: rec.Token, OwnerID: rec.OwnerID}, "r00t")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
