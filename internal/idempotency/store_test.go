package idempotency

import (
	"context"
	"testing"
	"time"

	"boohpay/internal/apperr"
	"boohpay/internal/repository"
	"boohpay/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a, err := Fingerprint([]byte(`{"amount":5000,"customer":{"phone":"1","email":"x"},"currency":"XAF"}`))
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"currency": "XAF", "customer": map[string]any{"email": "x", "phone": "1"}, "amount": 5000})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Fingerprint([]byte(`{"amount":5001,"currency":"XAF"}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestStoreReplayAndConflict(t *testing.T) {
	ctx := context.Background()
	s := NewStore(repository.NewIdempotencyRepository(testutil.NewDB(t)), time.Hour, zap.NewNop())
	body := []byte(`{"amount":5000}`)

	rec, err := s.Check(ctx, "k1", "m1", body)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.Store(ctx, "k1", "m1", body, 202, []byte(`{"payment_id":"p1"}`)))
	require.NoError(t, s.Store(ctx, "k1", "m1", body, 500, []byte(`{}`)))

	rec, err = s.Check(ctx, "k1", "m1", []byte(`{ "amount" : 5000 }`))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 202, rec.StatusCode)
	assert.Equal(t, `{"payment_id":"p1"}`, string(rec.ResponseBody))

	_, err = s.Check(ctx, "k1", "m1", []byte(`{"amount":6000}`))
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	same, err := s.ValidateSameRequest(ctx, "k1", "m1", []byte(`{"amount":6000}`))
	require.NoError(t, err)
	assert.False(t, same)

	rec, err = s.Check(ctx, "k1", "m2", body)
	require.NoError(t, err)
	assert.Nil(t, rec, "keys are scoped per merchant")
}

func TestExpiredKeyCanBeReused(t *testing.T) {
	ctx := context.Background()
	s := NewStore(repository.NewIdempotencyRepository(testutil.NewDB(t)), time.Hour, zap.NewNop())
	base := time.Now().UTC()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Store(ctx, "k", "m1", []byte(`{"a":1}`), 202, []byte(`{}`)))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	rec, err := s.Check(ctx, "k", "m1", []byte(`{"a":2}`))
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, s.Store(ctx, "k", "m1", []byte(`{"a":2}`), 201, []byte(`{"new":true}`)))

	rec, err = s.Check(ctx, "k", "m1", []byte(`{"a":2}`))
	require.NoError(t, err)
	assert.Equal(t, 201, rec.StatusCode)
}
