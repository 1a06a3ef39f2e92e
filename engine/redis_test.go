package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour, 0), mr
}

func TestRedisInteractionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	if _, err := s.InteractionDetails(ctx, "nope"); !errors.Is(err, ErrInteractionNotFound) {
		t.Fatalf("want ErrInteractionNotFound, got: %v", err)
	}

	it := &Interaction{Prompt: PromptLogin, Params: Params{ClientID: "cli", Scope: "openid"}}
	if err := s.CreateInteraction(ctx, it); err != nil {
		t.Fatal(err)
	}

	got, err := s.InteractionDetails(ctx, it.UID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Prompt != PromptLogin {
		t.Errorf("want login prompt, got: %s", got.Prompt)
	}

	if _, err := s.FinishInteraction(ctx, it.UID, Resolution{Login: &LoginResult{AccountID: "2"}}, FinishOpts{}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.FinishInteraction(ctx, it.UID, Resolution{}, FinishOpts{}); !errors.Is(err, ErrInteractionResolved) {
		t.Errorf("want ErrInteractionResolved on second finish, got: %v", err)
	}
	if _, err := s.InteractionDetails(ctx, it.UID); !errors.Is(err, ErrInteractionResolved) {
		t.Errorf("want ErrInteractionResolved on details after finish, got: %v", err)
	}

	res, ok, err := s.Result(ctx, it.UID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || res.Login == nil || res.Login.AccountID != "2" {
		t.Errorf("want recorded login for account 2, got: %+v", res)
	}
}

func TestRedisMergeWithLastSubmission(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	login := &Interaction{Prompt: PromptLogin, Session: SessionRef{ID: "sess"}}
	if err := s.CreateInteraction(ctx, login); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FinishInteraction(ctx, login.UID, Resolution{Login: &LoginResult{AccountID: "1"}}, FinishOpts{}); err != nil {
		t.Fatal(err)
	}

	consent := &Interaction{Prompt: PromptConsent, Session: SessionRef{ID: "sess", AccountID: "1"}}
	if err := s.CreateInteraction(ctx, consent); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FinishInteraction(ctx, consent.UID, Resolution{Consent: &ConsentResult{GrantID: "g1"}}, FinishOpts{MergeWithLastSubmission: true}); err != nil {
		t.Fatal(err)
	}

	res, ok, err := s.Result(ctx, consent.UID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || res.Login == nil || res.Consent == nil {
		t.Fatalf("want composed login+consent result, got: %+v", res)
	}
}

func TestRedisGrants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	if _, err := s.FindGrant(ctx, "missing"); !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("want ErrGrantNotFound, got: %v", err)
	}

	id, err := s.SaveGrant(ctx, &Grant{AccountID: "1", ClientID: "cli", Scopes: []string{"openid"}})
	if err != nil {
		t.Fatal(err)
	}
	g, err := s.FindGrant(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !g.HasScope("openid") {
		t.Error("grant should carry its scopes through redis")
	}
}

func TestRedisInteractionExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mr := newTestRedisStore(t)

	it := &Interaction{Prompt: PromptLogin}
	if err := s.CreateInteraction(ctx, it); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Hour)

	if _, err := s.InteractionDetails(ctx, it.UID); !errors.Is(err, ErrInteractionNotFound) {
		t.Errorf("want expiry to reclaim the interaction, got: %v", err)
	}
}
