// Package engine defines the contract with the OIDC engine that owns the
// protocol side of authorization: codes, tokens, discovery and signing all
// live behind it. This service only consumes the engine's interaction
// abstraction, and reports resolutions back to it.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrInteractionNotFound is returned for an unknown or expired
	// interaction handle.
	ErrInteractionNotFound = errors.New("interaction not found")
	// ErrInteractionResolved is returned when an interaction has already had
	// a resolution submitted. Resolution is terminal per handle.
	ErrInteractionResolved = errors.New("interaction already resolved")
	// ErrGrantNotFound is returned when a referenced grant no longer exists.
	ErrGrantNotFound = errors.New("grant not found")
)

// Prompt is the kind of user input an interaction is waiting on.
type Prompt string

const (
	PromptLogin   Prompt = "login"
	PromptConsent Prompt = "consent"
)

// Interaction is a paused authorization attempt the engine is waiting on.
// It is read-only to this service.
type Interaction struct {
	UID     string     `json:"uid"`
	Prompt  Prompt     `json:"prompt"`
	Params  Params     `json:"params"`
	Session SessionRef `json:"session"`
}

// Params carries the authorization request parameters relevant to prompt
// handling.
type Params struct {
	ClientID    string `json:"client_id"`
	Scope       string `json:"scope"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// SessionRef describes the engine-side session this interaction belongs to.
// A non-empty GrantID means a prior consent in this session produced a
// grant that may be reused.
type SessionRef struct {
	ID        string `json:"id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	GrantID   string `json:"grant_id,omitempty"`
}

// Grant records which scopes an account has authorized for a client. Scopes
// only ever accumulate; nothing in this service removes one.
type Grant struct {
	ID        string   `json:"id,omitempty"`
	AccountID string   `json:"account_id"`
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes,omitempty"`
}

// HasScope reports whether the grant already authorizes the single scope.
func (g *Grant) HasScope(scope string) bool {
	for _, s := range g.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Resolution is the outcome reported back to the engine for an interaction.
// Exactly one branch is normally set; an empty Consent is the permissive
// resolution for prompt kinds we don't recognize.
type Resolution struct {
	Login   *LoginResult   `json:"login,omitempty"`
	Consent *ConsentResult `json:"consent,omitempty"`
}

// LoginResult identifies the authenticated subject.
type LoginResult struct {
	AccountID string `json:"accountId"`
}

// ConsentResult references the grant backing the consent decision.
type ConsentResult struct {
	GrantID string `json:"grantId,omitempty"`
}

// FinishOpts controls how a resolution combines with earlier submissions
// for the same authorization attempt.
type FinishOpts struct {
	// MergeWithLastSubmission composes this resolution with the previous one
	// (consent layering on top of a just-completed login). A fresh
	// authentication decision submits with this false, replacing whatever
	// came before.
	MergeWithLastSubmission bool
}

// Engine is the collaborator contract with the external OIDC engine.
type Engine interface {
	// InteractionDetails fetches the pending interaction for the handle.
	InteractionDetails(ctx context.Context, uid string) (*Interaction, error)
	// FinishInteraction submits a resolution, returning the URL the user
	// agent should be redirected to so the engine can continue the flow.
	FinishInteraction(ctx context.Context, uid string, res Resolution, opts FinishOpts) (string, error)
	// FindGrant fetches a grant by ID, returning ErrGrantNotFound on a miss.
	FindGrant(ctx context.Context, id string) (*Grant, error)
	// SaveGrant persists the grant, assigning an ID if it has none, and
	// returns the grant ID.
	SaveGrant(ctx context.Context, g *Grant) (string, error)
}

// AccountSource is how the engine pulls subject claims when it mints
// tokens, the equivalent of the provider findAccount hook. ok is false when
// no account exists for the ID, which surfaces on the engine's own failure
// path.
type AccountSource interface {
	AccountClaims(ctx context.Context, accountID string, scopes []string) (map[string]any, bool, error)
}

// mergeResolution folds next into prev per FinishOpts semantics.
func mergeResolution(prev *Resolution, next Resolution, opts FinishOpts) Resolution {
	if !opts.MergeWithLastSubmission || prev == nil {
		return next
	}
	merged := *prev
	if next.Login != nil {
		merged.Login = next.Login
	}
	if next.Consent != nil {
		merged.Consent = next.Consent
	}
	return merged
}
