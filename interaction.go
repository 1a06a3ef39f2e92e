package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/sableauth/interactd/account"
	"github.com/sableauth/interactd/claims"
	"github.com/sableauth/interactd/engine"
	"github.com/sableauth/interactd/grants"
	"github.com/sableauth/interactd/websession"
)

const loginFailedMessage = "Invalid username or password"

var formDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// interactionServer drives pending interactions to a resolution. For each
// handle it fetches the prompt from the engine, gathers or reuses
// credentials, assembles a consent grant, and reports the outcome back.
// Resolution is terminal; everything after it (code issuance, the redirect
// target) is the engine's business.
type interactionServer struct {
	eng        engine.Engine
	accounts   account.Store
	grantmgr   *grants.Manager
	websess    *websession.Manager
	clients    *clientRegistry
	syncSecret []byte
	eh         *httpErrHandler
}

func (s *interactionServer) AddHandlers(r chi.Router) {
	r.Get("/interaction/{uid}", s.handleInteraction)
	r.Post("/interaction/{uid}/login", s.handleLogin)
	r.Post("/auth/syncUserSession", s.handleSessionSync)
}

// handleInteraction inspects the pending prompt and dispatches on its kind.
func (s *interactionServer) handleInteraction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := chi.URLParam(r, "uid")

	it, err := s.eng.InteractionDetails(ctx, uid)
	if err != nil {
		s.eh.Error(w, r, err)
		return
	}

	switch it.Prompt {
	case engine.PromptLogin:
		s.promptLogin(w, r, it)
	case engine.PromptConsent:
		s.promptConsent(w, r, it)
	default:
		// prompt kinds we don't recognize resolve as implicitly satisfied.
		// If the engine grows prompts with real semantics this needs a
		// branch, so make it visible.
		ctxLog(ctx).WithField("prompt", it.Prompt).Warn("unrecognized prompt, resolving empty consent")
		s.finish(w, r, it.UID, engine.Resolution{Consent: &engine.ConsentResult{}}, engine.FinishOpts{MergeWithLastSubmission: true})
	}
}

// promptLogin consults the session reuse gate before prompting. A valid
// marker resolves the login silently; otherwise the user gets the form.
func (s *interactionServer) promptLogin(w http.ResponseWriter, r *http.Request, it *engine.Interaction) {
	if accountID, ok := s.websess.CheckReuse(r); ok {
		ctxLog(r.Context()).WithField("account_id", accountID).Debug("reusing session marker for login prompt")
		s.finish(w, r, it.UID,
			engine.Resolution{Login: &engine.LoginResult{AccountID: accountID}},
			engine.FinishOpts{MergeWithLastSubmission: false})
		return
	}

	if err := renderLogin(w, loginPageData{UID: it.UID, Params: it.Params}); err != nil {
		s.eh.Error(w, r, err)
	}
}

// promptConsent obtains a grant, merges the requested scopes into it,
// persists it and resolves the interaction with the grant reference. The
// resolution merges with the last submission so consent composes with a
// just-completed login in the same attempt.
func (s *interactionServer) promptConsent(w http.ResponseWriter, r *http.Request, it *engine.Interaction) {
	ctx := r.Context()
	l := ctxLog(ctx)

	if cl, ok := s.clients.Get(it.Params.ClientID); !ok {
		l.WithField("client_id", it.Params.ClientID).Warn("consent for client not in local registry")
	} else if over := scopesOutsideAllowance(cl, it.Params.Scope); len(over) > 0 {
		l.WithField("scopes", over).Warn("requested scopes exceed client allowance")
	}

	g, err := s.grantmgr.Obtain(ctx, it.Session.GrantID, it.Session.AccountID, it.Params.ClientID)
	if err != nil {
		s.eh.Error(w, r, err)
		return
	}
	if it.Params.Scope != "" {
		grants.AddScopes(g, it.Params.Scope)
	}
	grantID, err := s.grantmgr.Persist(ctx, g)
	if err != nil {
		s.eh.Error(w, r, err)
		return
	}

	s.finish(w, r, it.UID,
		engine.Resolution{Consent: &engine.ConsentResult{GrantID: grantID}},
		engine.FinishOpts{MergeWithLastSubmission: true})
}

type loginForm struct {
	Username string `schema:"username"`
	Password string `schema:"password"`
}

// handleLogin takes the login form submission. A credential mismatch
// re-renders the form with an error and leaves the interaction open; only a
// verified login reaches the engine.
func (s *interactionServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := chi.URLParam(r, "uid")

	if err := r.ParseForm(); err != nil {
		s.eh.BadRequest(w, r, "invalid form body")
		return
	}
	var form loginForm
	if err := formDecoder.Decode(&form, r.PostForm); err != nil {
		s.eh.BadRequest(w, r, "invalid form body")
		return
	}

	acct, err := s.accounts.Verify(ctx, form.Username, form.Password)
	if errors.Is(err, account.ErrInvalidCredentials) {
		if err := renderLogin(w, loginPageData{UID: uid, Error: loginFailedMessage}); err != nil {
			s.eh.Error(w, r, err)
		}
		return
	}
	if err != nil {
		s.eh.Error(w, r, err)
		return
	}

	// sticky session: later login prompts from this user agent resolve
	// without a fresh form
	if err := s.websess.SetMarker(w, r, &websession.Marker{AccountID: acct.ID}); err != nil {
		s.eh.Error(w, r, err)
		return
	}

	s.finish(w, r, uid,
		engine.Resolution{Login: &engine.LoginResult{AccountID: acct.ID}},
		engine.FinishOpts{MergeWithLastSubmission: false})
}

type sessionSyncForm struct {
	SessionToken     string `schema:"sessionToken"`
	LocationCode     string `schema:"locationCode"`
	InstalledAppGUID string `schema:"installedAppGuid"`
}

// handleSessionSync accepts an externally issued session token and writes a
// login marker for this user agent, so the next login prompt is skipped.
// The marker identity is the token's verified subject.
func (s *interactionServer) handleSessionSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		s.eh.BadRequest(w, r, "invalid form body")
		return
	}
	var form sessionSyncForm
	if err := formDecoder.Decode(&form, r.PostForm); err != nil || form.SessionToken == "" {
		s.eh.BadRequest(w, r, "sessionToken is required")
		return
	}

	accountID, err := websession.ParseSyncToken(form.SessionToken, s.syncSecret)
	if err != nil {
		ctxLog(ctx).WithError(err).Info("rejected session sync token")
		s.eh.Unauthorized(w, r, "invalid session token")
		return
	}
	_, ok, err := s.accounts.Lookup(ctx, accountID)
	if err != nil {
		s.eh.Error(w, r, err)
		return
	}
	if !ok {
		s.eh.Unauthorized(w, r, "unknown account")
		return
	}

	if err := s.websess.SetMarker(w, r, &websession.Marker{
		AccountID:        accountID,
		LocationCode:     form.LocationCode,
		InstalledAppGUID: form.InstalledAppGUID,
	}); err != nil {
		s.eh.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz round-trips the engine without mutating anything.
func (s *interactionServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	_, err := s.eng.FindGrant(r.Context(), "healthz-probe")
	if err != nil && !errors.Is(err, engine.ErrGrantNotFound) {
		s.eh.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// finish submits the resolution and sends the user agent wherever the
// engine says the flow continues.
func (s *interactionServer) finish(w http.ResponseWriter, r *http.Request, uid string, res engine.Resolution, opts engine.FinishOpts) {
	redir, err := s.eng.FinishInteraction(r.Context(), uid, res, opts)
	if err != nil {
		s.eh.Error(w, r, err)
		return
	}
	http.Redirect(w, r, redir, http.StatusSeeOther)
}

func scopesOutsideAllowance(c *Client, scope string) []string {
	allowed := c.AllowedScopes()
	var over []string
	for _, s := range strings.Fields(scope) {
		if !allowed[s] {
			over = append(over, s)
		}
	}
	return over
}

// engineAccounts adapts the account store and claims resolver into the
// engine's findAccount hook.
type engineAccounts struct {
	store account.Store
}

func (e *engineAccounts) AccountClaims(ctx context.Context, accountID string, scopes []string) (map[string]any, bool, error) {
	a, ok, err := e.store.Lookup(ctx, accountID)
	if err != nil || !ok {
		return nil, false, err
	}
	return claims.Resolve(a, scopes).Map(), true, nil
}
