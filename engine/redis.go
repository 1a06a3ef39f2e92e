package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyInteraction = "interactd:interaction:"
	keyResult      = "interactd:result:"
	keySessionLast = "interactd:session-last:"
	keyGrant       = "interactd:grant:"
)

// RedisStore is an Engine backed by Redis, for running multiple instances
// of the daemon against a shared engine state. Same modelling caveats as
// Memory.
type RedisStore struct {
	rdb            *redis.Client
	interactionTTL time.Duration
	grantTTL       time.Duration
}

var _ Engine = (*RedisStore)(nil)

// NewRedisStore wraps the given client. interactionTTL bounds how long a
// pending or resolved interaction is kept; grantTTL may be zero to keep
// grants until Redis evicts them.
func NewRedisStore(rdb *redis.Client, interactionTTL, grantTTL time.Duration) *RedisStore {
	if interactionTTL == 0 {
		interactionTTL = time.Hour
	}
	return &RedisStore{rdb: rdb, interactionTTL: interactionTTL, grantTTL: grantTTL}
}

// Ping verifies the backing connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// CreateInteraction seeds a pending interaction, assigning a UID and
// session ID if absent.
func (s *RedisStore) CreateInteraction(ctx context.Context, it *Interaction) error {
	if it.UID == "" {
		it.UID = uuid.NewString()
	}
	if it.Session.ID == "" {
		it.Session.ID = uuid.NewString()
	}
	b, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, keyInteraction+it.UID, b, s.interactionTTL).Result()
	if err != nil {
		return fmt.Errorf("storing interaction %s: %w", it.UID, err)
	}
	if !ok {
		return fmt.Errorf("interaction %s already exists", it.UID)
	}
	return nil
}

func (s *RedisStore) getInteraction(ctx context.Context, uid string) (*Interaction, error) {
	b, err := s.rdb.Get(ctx, keyInteraction+uid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInteractionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching interaction %s: %w", uid, err)
	}
	var it Interaction
	if err := json.Unmarshal(b, &it); err != nil {
		return nil, fmt.Errorf("unmarshal interaction %s: %w", uid, err)
	}
	return &it, nil
}

func (s *RedisStore) InteractionDetails(ctx context.Context, uid string) (*Interaction, error) {
	it, err := s.getInteraction(ctx, uid)
	if err != nil {
		return nil, err
	}
	done, err := s.rdb.Exists(ctx, keyResult+uid).Result()
	if err != nil {
		return nil, fmt.Errorf("checking result for %s: %w", uid, err)
	}
	if done > 0 {
		return nil, ErrInteractionResolved
	}
	return it, nil
}

func (s *RedisStore) FinishInteraction(ctx context.Context, uid string, res Resolution, opts FinishOpts) (string, error) {
	it, err := s.getInteraction(ctx, uid)
	if err != nil {
		return "", err
	}

	var prev *Resolution
	if opts.MergeWithLastSubmission {
		b, err := s.rdb.Get(ctx, keySessionLast+it.Session.ID).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("fetching last submission for session %s: %w", it.Session.ID, err)
		}
		if err == nil {
			prev = &Resolution{}
			if err := json.Unmarshal(b, prev); err != nil {
				return "", fmt.Errorf("unmarshal last submission: %w", err)
			}
		}
	}

	merged := mergeResolution(prev, res, opts)
	b, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("marshal resolution: %w", err)
	}

	// first write wins; a second submission for the handle is terminal
	ok, err := s.rdb.SetNX(ctx, keyResult+uid, b, s.interactionTTL).Result()
	if err != nil {
		return "", fmt.Errorf("storing resolution for %s: %w", uid, err)
	}
	if !ok {
		return "", ErrInteractionResolved
	}
	if err := s.rdb.Set(ctx, keySessionLast+it.Session.ID, b, s.interactionTTL).Err(); err != nil {
		return "", fmt.Errorf("storing last submission: %w", err)
	}

	if merged.Login != nil {
		it.Session.AccountID = merged.Login.AccountID
	}
	if merged.Consent != nil && merged.Consent.GrantID != "" {
		it.Session.GrantID = merged.Consent.GrantID
	}
	ib, err := json.Marshal(it)
	if err != nil {
		return "", fmt.Errorf("marshal interaction: %w", err)
	}
	if err := s.rdb.Set(ctx, keyInteraction+uid, ib, redis.KeepTTL).Err(); err != nil {
		return "", fmt.Errorf("updating interaction %s: %w", uid, err)
	}

	return fmt.Sprintf("/auth/%s/resume", uid), nil
}

func (s *RedisStore) FindGrant(ctx context.Context, id string) (*Grant, error) {
	b, err := s.rdb.Get(ctx, keyGrant+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching grant %s: %w", id, err)
	}
	var g Grant
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("unmarshal grant %s: %w", id, err)
	}
	return &g, nil
}

func (s *RedisStore) SaveGrant(ctx context.Context, g *Grant) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	b, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal grant: %w", err)
	}
	if err := s.rdb.Set(ctx, keyGrant+g.ID, b, s.grantTTL).Err(); err != nil {
		return "", fmt.Errorf("storing grant %s: %w", g.ID, err)
	}
	return g.ID, nil
}

// Result returns the recorded resolution for an interaction, if any.
func (s *RedisStore) Result(ctx context.Context, uid string) (*Resolution, bool, error) {
	b, err := s.rdb.Get(ctx, keyResult+uid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetching result for %s: %w", uid, err)
	}
	var r Resolution
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false, fmt.Errorf("unmarshal result for %s: %w", uid, err)
	}
	return &r, true, nil
}
