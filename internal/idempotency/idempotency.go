// Package idempotency records the outcome of keyed POST requests in Redis so
// retries replay the first response instead of repeating the side effect.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Header carries the client-chosen key.
	Header = "Idempotency-Key"
	// ReplayHeader marks responses served from a stored record.
	ReplayHeader = "Idempotent-Replay"

	MaxKeyLength = 255
	DefaultTTL   = 24 * time.Hour
)

var (
	ErrInvalidKey = errors.New("Idempotency-Key must be between 1 and 255 characters")
	ErrInFlight   = errors.New("a request with this Idempotency-Key is still in progress")
)

const (
	stateInFlight = "in_flight"
	stateDone     = "done"
)

// Record is a stored response.
type Record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

type entry struct {
	State string  `json:"state"`
	Resp  *Record `json:"response,omitempty"`
}

// ValidateKey checks the header value length.
func ValidateKey(key string) error {
	if len(key) < 1 || len(key) > MaxKeyLength {
		return ErrInvalidKey
	}
	return nil
}

// Store keeps reservations and completed responses.
type Store struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewStore returns a Store; ttl <= 0 selects DefaultTTL.
func NewStore(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if keyPrefix == "" {
		keyPrefix = "crisiscrew"
	}
	return &Store{rdb: rdb, keyPrefix: keyPrefix, ttl: ttl}
}

// Key scopes a client key to the caller and route.
func (s *Store) Key(subject, method, path, clientKey string) string {
	return strings.Join([]string{s.keyPrefix, "idem", subject, method + " " + path, clientKey}, ":")
}

// Reserve claims key. It returns (nil, nil) when the caller now owns the key,
// the stored record when a previous request completed, or ErrInFlight.
func (s *Store) Reserve(ctx context.Context, key string) (*Record, error) {
	marker, err := json.Marshal(entry{State: stateInFlight})
	if err != nil {
		return nil, err
	}
	ok, err := s.rdb.SetNX(ctx, key, marker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = s.rdb.SetNX(ctx, key, marker, s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return nil, nil
		}
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	if e.State != stateDone || e.Resp == nil {
		return nil, ErrInFlight
	}
	return e.Resp, nil
}

// Complete stores rec for replay.
func (s *Store) Complete(ctx context.Context, key string, rec Record) error {
	raw, err := json.Marshal(entry{State: stateDone, Resp: &rec})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, s.ttl).Err()
}

// Release drops a reservation so the request may be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Replay writes rec to w.
func Replay(w http.ResponseWriter, rec *Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(ReplayHeader, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
