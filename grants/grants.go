// Package grants creates and extends consent grants through the engine.
package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sableauth/interactd/engine"
)

// Manager obtains, extends and persists grants. A grant's scope set only
// ever grows; repeated consent for the same (account, client) pair merges
// into the existing grant.
type Manager struct {
	eng engine.Engine
}

func NewManager(eng engine.Engine) *Manager {
	return &Manager{eng: eng}
}

// Obtain returns the grant to extend for this consent. When the engine
// session references a grant it is fetched and reused; a stale reference
// (expired or deleted grant) falls back to a fresh grant rather than
// failing the interaction.
func (m *Manager) Obtain(ctx context.Context, sessionGrantID, accountID, clientID string) (*engine.Grant, error) {
	if sessionGrantID != "" {
		g, err := m.eng.FindGrant(ctx, sessionGrantID)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, engine.ErrGrantNotFound) {
			return nil, fmt.Errorf("fetching grant %s: %w", sessionGrantID, err)
		}
	}
	return &engine.Grant{AccountID: accountID, ClientID: clientID}, nil
}

// AddScopes merges a space-separated OIDC scope string into the grant.
// Scopes already present are left alone, so re-submitting a consent is a
// no-op.
func AddScopes(g *engine.Grant, scope string) {
	for _, s := range strings.Fields(scope) {
		if !g.HasScope(s) {
			g.Scopes = append(g.Scopes, s)
		}
	}
}

// Persist saves the grant and returns its reference for the interaction
// resolution.
func (m *Manager) Persist(ctx context.Context, g *engine.Grant) (string, error) {
	id, err := m.eng.SaveGrant(ctx, g)
	if err != nil {
		return "", fmt.Errorf("saving grant: %w", err)
	}
	return id, nil
}
