package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boohpay/internal/apperr"
	"boohpay/internal/models"
	"boohpay/internal/repository"

	"go.uber.org/zap"
)

const DefaultTTL = 24 * time.Hour

// Store maps (merchant, Idempotency-Key) to the first response served for that key.
type Store struct {
	repo *repository.IdempotencyRepository
	ttl  time.Duration
	log  *zap.Logger
	now  func() time.Time
}

func NewStore(repo *repository.IdempotencyRepository, ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{repo: repo, ttl: ttl, log: log.Named("idempotency"), now: func() time.Time { return time.Now().UTC() }}
}

// Fingerprint hashes the canonical JSON form of body. Object keys are sorted at every level.
func Fingerprint(body any) (string, error) {
	raw, ok := body.([]byte)
	if !ok {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return "", fmt.Errorf("fingerprint: %w", err)
		}
	}
	canon, err := canonical(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

func canonical(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}
	// encoding/json writes map keys in sorted order.
	return json.Marshal(v)
}

// Check returns the stored record for a matching request, nil when the key is unused,
// and a Conflict error when the key was used with a different body.
func (s *Store) Check(ctx context.Context, key, merchantID string, body any) (*models.IdempotencyRecord, error) {
	hash, err := Fingerprint(body)
	if err != nil {
		return nil, apperr.ValidationErr("Request body is not valid JSON", nil)
	}
	rec, err := s.repo.Get(ctx, merchantID, key, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.RequestHash != hash {
		return nil, apperr.ConflictErr("Idempotency-Key already used with a different request body")
	}
	return rec, nil
}

// ValidateSameRequest reports whether body matches the request stored under key. An unused key is valid.
func (s *Store) ValidateSameRequest(ctx context.Context, key, merchantID string, body any) (bool, error) {
	_, err := s.Check(ctx, key, merchantID, body)
	if apperr.IsKind(err, apperr.Conflict) {
		return false, nil
	}
	return err == nil, err
}

// Store writes the response for key once. A concurrent writer that lost the race is ignored.
func (s *Store) Store(ctx context.Context, key, merchantID string, body any, status int, response []byte) error {
	hash, err := Fingerprint(body)
	if err != nil {
		return err
	}
	now := s.now()
	if err := s.repo.DeleteExpiredKey(ctx, merchantID, key, now); err != nil {
		return err
	}
	inserted, err := s.repo.Insert(ctx, &models.IdempotencyRecord{
		MerchantID:   merchantID,
		Key:          key,
		RequestHash:  hash,
		StatusCode:   status,
		ResponseBody: response,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("idempotency record already present", zap.String("merchant_id", merchantID), zap.String("key", key))
	}
	return nil
}

// Purge deletes expired records.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpired(ctx, s.now())
}
