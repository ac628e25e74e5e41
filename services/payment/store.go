package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"carelink/models"

	"github.com/go-redis/redis/v8"
)

const attemptPrefix = "payment:attempt:"

var (
	ErrAttemptNotFound = errors.New("payment attempt not found")
	ErrAttemptBusy     = errors.New("payment attempt is being modified concurrently")
)

// AttemptStore holds attempts until they expire. Update applies fn to the
// current attempt and writes the result atomically; an error from fn aborts
// the write and is returned as is. DeleteIf removes the attempt only if fn,
// run against the same snapshot, returns nil.
type AttemptStore interface {
	Create(ctx context.Context, attempt *models.PaymentAttempt) error
	Get(ctx context.Context, attemptID string) (*models.PaymentAttempt, error)
	Update(ctx context.Context, attemptID string, fn func(*models.PaymentAttempt) error) (*models.PaymentAttempt, error)
	DeleteIf(ctx context.Context, attemptID string, fn func(*models.PaymentAttempt) error) error
}

// RedisAttemptStore keeps attempts as JSON values with a TTL.
type RedisAttemptStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
}

func NewRedisAttemptStore(client *redis.Client, ttl time.Duration) *RedisAttemptStore {
	return &RedisAttemptStore{client: client, ttl: ttl, maxRetries: 5}
}

func (s *RedisAttemptStore) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	b, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, attemptPrefix+attempt.ID, b, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store payment attempt: %w", err)
	}
	if !ok {
		return fmt.Errorf("payment attempt %s already exists", attempt.ID)
	}
	return nil
}

func (s *RedisAttemptStore) Get(ctx context.Context, attemptID string) (*models.PaymentAttempt, error) {
	return decodeAttempt(s.client.Get(ctx, attemptPrefix+attemptID).Bytes())
}

func decodeAttempt(data []byte, err error) (*models.PaymentAttempt, error) {
	if err == redis.Nil {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payment attempt: %w", err)
	}
	var attempt models.PaymentAttempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		return nil, fmt.Errorf("corrupt payment attempt: %w", err)
	}
	return &attempt, nil
}

// Update is an optimistic WATCH/MULTI read-modify-write. The key keeps its TTL.
func (s *RedisAttemptStore) Update(ctx context.Context, attemptID string, fn func(*models.PaymentAttempt) error) (*models.PaymentAttempt, error) {
	key := attemptPrefix + attemptID
	var updated *models.PaymentAttempt

	txf := func(tx *redis.Tx) error {
		attempt, err := decodeAttempt(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}
		if err := fn(attempt); err != nil {
			return err
		}
		b, err := json.Marshal(attempt)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, redis.KeepTTL)
			return nil
		})
		if err == nil {
			updated = attempt
		}
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrAttemptBusy
}

// DeleteIf checks and deletes under the same WATCH, so a concurrent Update
// aborts the delete and the check runs again on the new value.
func (s *RedisAttemptStore) DeleteIf(ctx context.Context, attemptID string, fn func(*models.PaymentAttempt) error) error {
	key := attemptPrefix + attemptID

	txf := func(tx *redis.Tx) error {
		attempt, err := decodeAttempt(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}
		if err := fn(attempt); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return ErrAttemptBusy
}

type memoryEntry struct {
	attempt   models.PaymentAttempt
	expiresAt time.Time
}

// MemoryAttemptStore is an in-process AttemptStore with lazy expiry.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	attempts map[string]memoryEntry
}

func NewMemoryAttemptStore(ttl time.Duration, now func() time.Time) *MemoryAttemptStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryAttemptStore{ttl: ttl, now: now, attempts: make(map[string]memoryEntry)}
}

func (s *MemoryAttemptStore) Create(_ context.Context, attempt *models.PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveLocked(attempt.ID); ok {
		return fmt.Errorf("payment attempt %s already exists", attempt.ID)
	}
	s.attempts[attempt.ID] = memoryEntry{attempt: *attempt, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryAttemptStore) liveLocked(id string) (memoryEntry, bool) {
	entry, ok := s.attempts[id]
	if !ok {
		return entry, false
	}
	if s.ttl > 0 && !s.now().Before(entry.expiresAt) {
		delete(s.attempts, id)
		return entry, false
	}
	return entry, true
}

func (s *MemoryAttemptStore) Get(_ context.Context, attemptID string) (*models.PaymentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(attemptID)
	if !ok {
		return nil, ErrAttemptNotFound
	}
	a := entry.attempt
	return &a, nil
}

func (s *MemoryAttemptStore) Update(_ context.Context, attemptID string, fn func(*models.PaymentAttempt) error) (*models.PaymentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(attemptID)
	if !ok {
		return nil, ErrAttemptNotFound
	}
	a := entry.attempt
	if err := fn(&a); err != nil {
		return nil, err
	}
	entry.attempt = a
	s.attempts[attemptID] = entry
	out := a
	return &out, nil
}

func (s *MemoryAttemptStore) DeleteIf(_ context.Context, attemptID string, fn func(*models.PaymentAttempt) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(attemptID)
	if !ok {
		return ErrAttemptNotFound
	}
	a := entry.attempt
	if err := fn(&a); err != nil {
		return err
	}
	delete(s.attempts, attemptID)
	return nil
}
