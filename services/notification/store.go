package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"carelink/models"

	"github.com/go-redis/redis/v8"
)

// InboxLimit is the number of entries kept per party.
const InboxLimit = 100

// InboxStore holds each party's notifications, newest first.
type InboxStore interface {
	Push(ctx context.Context, n models.Notification) error
	List(ctx context.Context, partyID string, limit int) ([]models.Notification, error)
}

func inboxKey(partyID string) string {
	return "notif:" + partyID
}

// RedisInboxStore keeps one capped list per party.
type RedisInboxStore struct {
	client *redis.Client
}

func NewRedisInboxStore(client *redis.Client) *RedisInboxStore {
	return &RedisInboxStore{client: client}
}

func (s *RedisInboxStore) Push(ctx context.Context, n models.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := inboxKey(n.PartyID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, InboxLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push notification for %s: %w", n.PartyID, err)
	}
	return nil
}

func (s *RedisInboxStore) List(ctx context.Context, partyID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > InboxLimit {
		limit = InboxLimit
	}
	raw, err := s.client.LRange(ctx, inboxKey(partyID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", partyID, err)
	}
	out := make([]models.Notification, 0, len(raw))
	for _, item := range raw {
		var n models.Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

type MemoryInboxStore struct {
	mu    sync.RWMutex
	inbox map[string][]models.Notification
}

func NewMemoryInboxStore() *MemoryInboxStore {
	return &MemoryInboxStore{inbox: make(map[string][]models.Notification)}
}

func (s *MemoryInboxStore) Push(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]models.Notification{n}, s.inbox[n.PartyID]...)
	if len(list) > InboxLimit {
		list = list[:InboxLimit]
	}
	s.inbox[n.PartyID] = list
	return nil
}

func (s *MemoryInboxStore) List(_ context.Context, partyID string, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.inbox[partyID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]models.Notification, limit)
	copy(out, list[:limit])
	return out, nil
}
