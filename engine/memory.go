package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Engine used by the development server and tests.
// It models the collaborator contract only: interactions must be seeded with
// CreateInteraction, and resolving one records the outcome rather than
// issuing codes.
type Memory struct {
	accounts AccountSource

	mu           sync.RWMutex
	interactions map[string]*Interaction
	results      map[string]*Resolution
	// lastBySession is the most recent submission per engine session, which
	// merge-enabled resolutions compose with.
	lastBySession map[string]*Resolution
	grants        map[string]*Grant
}

var _ Engine = (*Memory)(nil)

// NewMemory returns an empty in-memory engine. accounts may be nil if token
// claims are never modelled.
func NewMemory(accounts AccountSource) *Memory {
	return &Memory{
		accounts:      accounts,
		interactions:  make(map[string]*Interaction),
		results:       make(map[string]*Resolution),
		lastBySession: make(map[string]*Resolution),
		grants:        make(map[string]*Grant),
	}
}

// CreateInteraction seeds a pending interaction, assigning a UID and session
// ID if absent.
func (m *Memory) CreateInteraction(_ context.Context, it *Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.UID == "" {
		it.UID = uuid.NewString()
	}
	if it.Session.ID == "" {
		it.Session.ID = uuid.NewString()
	}
	if _, ok := m.interactions[it.UID]; ok {
		return fmt.Errorf("interaction %s already exists", it.UID)
	}
	cp := *it
	m.interactions[it.UID] = &cp
	return nil
}

func (m *Memory) InteractionDetails(_ context.Context, uid string) (*Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.interactions[uid]
	if !ok {
		return nil, ErrInteractionNotFound
	}
	if _, done := m.results[uid]; done {
		return nil, ErrInteractionResolved
	}
	cp := *it
	return &cp, nil
}

func (m *Memory) FinishInteraction(_ context.Context, uid string, res Resolution, opts FinishOpts) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.interactions[uid]
	if !ok {
		return "", ErrInteractionNotFound
	}
	if _, done := m.results[uid]; done {
		return "", ErrInteractionResolved
	}

	merged := mergeResolution(m.lastBySession[it.Session.ID], res, opts)
	m.results[uid] = &merged
	m.lastBySession[it.Session.ID] = &merged

	// reflect the resolution on the engine session, like the provider does
	// when it resumes the flow
	if merged.Login != nil {
		it.Session.AccountID = merged.Login.AccountID
	}
	if merged.Consent != nil && merged.Consent.GrantID != "" {
		it.Session.GrantID = merged.Consent.GrantID
	}

	return fmt.Sprintf("/auth/%s/resume", uid), nil
}

func (m *Memory) FindGrant(_ context.Context, id string) (*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, ErrGrantNotFound
	}
	cp := *g
	cp.Scopes = append([]string(nil), g.Scopes...)
	return &cp, nil
}

func (m *Memory) SaveGrant(_ context.Context, g *Grant) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	cp := *g
	cp.Scopes = append([]string(nil), g.Scopes...)
	m.grants[g.ID] = &cp
	return g.ID, nil
}

// Result returns the recorded resolution for an interaction, if any.
func (m *Memory) Result(uid string) (*Resolution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[uid]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// Session returns the engine session state for an interaction.
func (m *Memory) Session(uid string) (SessionRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.interactions[uid]
	if !ok {
		return SessionRef{}, false
	}
	return it.Session, true
}

// IDTokenClaims models the engine's findAccount call when it mints tokens
// for a finished attempt: it resolves the session's grant and asks the
// account source for the claims those scopes authorize.
func (m *Memory) IDTokenClaims(ctx context.Context, uid string) (map[string]any, error) {
	m.mu.RLock()
	it, ok := m.interactions[uid]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrInteractionNotFound
	}
	if m.accounts == nil {
		return nil, fmt.Errorf("no account source configured")
	}
	if it.Session.AccountID == "" || it.Session.GrantID == "" {
		return nil, fmt.Errorf("interaction %s is not fully authorized", uid)
	}

	g, err := m.FindGrant(ctx, it.Session.GrantID)
	if err != nil {
		return nil, fmt.Errorf("fetching grant %s: %w", it.Session.GrantID, err)
	}

	cl, ok, err := m.accounts.AccountClaims(ctx, it.Session.AccountID, g.Scopes)
	if err != nil {
		return nil, fmt.Errorf("resolving claims for %s: %w", it.Session.AccountID, err)
	}
	if !ok {
		return nil, fmt.Errorf("account %s not found", it.Session.AccountID)
	}
	return cl, nil
}
