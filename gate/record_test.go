package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Validate(t *testing.T) {
	base := func() *Record {
		return &Record{
			OwnerID:   "t1",
			Token:     "deadbeef",
			TargetURL: "https://app.example/act",
			IssuedAt:  time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
	}

	assert.NoError(t, base().Validate())

	rec := base()
	rec.OwnerID = ""
	assert.ErrorIs(t, rec.Validate(), ErrIncompleteRecord)

	rec = base()
	rec.TargetURL = ""
	assert.ErrorIs(t, rec.Validate(), ErrIncompleteRecord)

	rec = base()
	rec.ExpiresAt = time.Time{}
	assert.ErrorIs(t, rec.Validate(), ErrIncompleteRecord)
}

func TestRecord_ExpiredAt(t *testing.T) {
	exp := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	rec := &Record{ExpiresAt: exp}

	assert.False(t, rec.ExpiredAt(exp.Add(-time.Second)))
	assert.False(t, rec.ExpiredAt(exp))
	assert.True(t, rec.ExpiredAt(exp.Add(time.Second)))
}

func TestRecord_RoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	rec := &Record{
		OwnerID:   "t1",
		Token:     "deadbeef",
		TargetURL: "https://app.example/act",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		Revoked:   true,
		RevokedAt: &now,
	}

	raw, err := encodeRecord(rec)
	require.NoError(t, err)

	got, err := decodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, rec.OwnerID, got.OwnerID)
	assert.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))
	assert.True(t, got.Revoked)
	require.NotNil(t, got.RevokedAt)
}

func TestDecodeRecord_Garbage(t *testing.T) {
	_, err := decodeRecord([]byte("{"))
	assert.ErrorIs(t, err, ErrIncompleteRecord)
}

func TestRemainingMinutes(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 60, remainingMinutes(now.Add(time.Hour), now))
	assert.Equal(t, 59, remainingMinutes(now.Add(59*time.Minute+20*time.Second), now))
	assert.Equal(t, 1, remainingMinutes(now.Add(45*time.Second), now))
	assert.Equal(t, 0, remainingMinutes(now.Add(10*time.Second), now))
}
