package controls

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"carelink/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Hub keeps the latest control flags per session and fans accepted updates
// out to subscribers. Apply returns applied=false for stale updates.
type Hub interface {
	Apply(ctx context.Context, update models.ControlUpdate) (bool, error)
	State(ctx context.Context, sessionID string) (*models.ControlState, error)
	Subscribe(ctx context.Context, sessionID string) (<-chan models.ControlUpdate, error)
}

func topic(sessionID string) string {
	return "controls:" + sessionID
}

func stateKey(sessionID string) string {
	return "controls:state:" + sessionID
}

func fieldKey(partyID string, field models.ControlField) string {
	return partyID + "|" + string(field)
}

const subscriberBuffer = 16

// applyScript stores the value only if the incoming seq is newer, then
// publishes on the session topic in the same atomic step.
var applyScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1] .. ':seq')
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1] .. ':seq', ARGV[2], ARGV[1] .. ':val', ARGV[3])
redis.call('PUBLISH', KEYS[2], ARGV[4])
return 1
`)

type RedisHub struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisHub(client *redis.Client, logger *zap.Logger) *RedisHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisHub{client: client, logger: logger}
}

func (h *RedisHub) Apply(ctx context.Context, update models.ControlUpdate) (bool, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return false, err
	}
	val := "0"
	if update.Value {
		val = "1"
	}
	res, err := applyScript.Run(ctx, h.client,
		[]string{stateKey(update.SessionID), topic(update.SessionID)},
		fieldKey(update.PartyID, update.Field), update.Seq, val, payload,
	).Int()
	if err != nil {
		return false, fmt.Errorf("apply control update: %w", err)
	}
	return res == 1, nil
}

func (h *RedisHub) State(ctx context.Context, sessionID string) (*models.ControlState, error) {
	raw, err := h.client.HGetAll(ctx, stateKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load control state: %w", err)
	}
	state := &models.ControlState{SessionID: sessionID, Parties: map[string]map[models.ControlField]models.ControlValue{}}
	for k, v := range raw {
		base, ok := strings.CutSuffix(k, ":seq")
		if !ok {
			continue
		}
		i := strings.LastIndex(base, "|")
		if i < 0 {
			continue
		}
		party, field := base[:i], models.ControlField(base[i+1:])
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			continue
		}
		setValue(state, party, field, models.ControlValue{Value: raw[base+":val"] == "1", Seq: seq, PartyID: party})
	}
	return state, nil
}

func (h *RedisHub) Subscribe(ctx context.Context, sessionID string) (<-chan models.ControlUpdate, error) {
	ps := h.client.Subscribe(ctx, topic(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic(sessionID), err)
	}

	out := make(chan models.ControlUpdate, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var u models.ControlUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					h.logger.Warn("Dropping malformed control update", zap.String("sessionID", sessionID), zap.Error(err))
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func setValue(state *models.ControlState, party string, field models.ControlField, v models.ControlValue) {
	if state.Parties[party] == nil {
		state.Parties[party] = make(map[models.ControlField]models.ControlValue)
	}
	state.Parties[party][field] = v
}

// MemoryHub is a single-process Hub.
type MemoryHub struct {
	mu     sync.Mutex
	states map[string]*models.ControlState
	subs   map[string]map[chan models.ControlUpdate]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		states: make(map[string]*models.ControlState),
		subs:   make(map[string]map[chan models.ControlUpdate]struct{}),
	}
}

func (h *MemoryHub) Apply(_ context.Context, update models.ControlUpdate) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.states[update.SessionID]
	if !ok {
		state = &models.ControlState{SessionID: update.SessionID, Parties: map[string]map[models.ControlField]models.ControlValue{}}
		h.states[update.SessionID] = state
	}
	if cur, ok := state.Parties[update.PartyID][update.Field]; ok && cur.Seq >= update.Seq {
		return false, nil
	}
	setValue(state, update.PartyID, update.Field, models.ControlValue{Value: update.Value, Seq: update.Seq, PartyID: update.PartyID})

	// Slow subscribers miss updates rather than stall the publisher.
	for ch := range h.subs[update.SessionID] {
		select {
		case ch <- update:
		default:
		}
	}
	return true, nil
}

func (h *MemoryHub) State(_ context.Context, sessionID string) (*models.ControlState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := &models.ControlState{SessionID: sessionID, Parties: map[string]map[models.ControlField]models.ControlValue{}}
	if state, ok := h.states[sessionID]; ok {
		for party, fields := range state.Parties {
			for f, v := range fields {
				setValue(out, party, f, v)
			}
		}
	}
	return out, nil
}

func (h *MemoryHub) Subscribe(ctx context.Context, sessionID string) (<-chan models.ControlUpdate, error) {
	ch := make(chan models.ControlUpdate, subscriberBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan models.ControlUpdate]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[sessionID], ch)
		if len(h.subs[sessionID]) == 0 {
			delete(h.subs, sessionID)
		}
		close(ch)
		h.mu.Unlock()
	}()
	return ch, nil
}
