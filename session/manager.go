package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/chalkfit/chalk-client-go/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Manager owns the one session value for the device's current user. Every
// operation commits memory first, then mirrors the access token to the
// transport and re-persists the blob; the persisted copy is best-effort and
// only exists to survive restarts.
//
// Network calls never run under the state lock. Operations snapshot the
// current session, talk to the backend, then commit the result, so
// interleaved operations each read-modify-write from a consistent snapshot.
type Manager struct {
	api    AuthAPI
	store  BlobStore
	tokens TokenSink
	evict  Evictor

	nowTime func() time.Time

	mu      sync.Mutex // guards current
	current *Session

	refreshMu sync.Mutex // serializes token refresh against the backend
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithEvictor registers the mode-scoped cache eviction hook invoked on
// mode switches.
func WithEvictor(evict Evictor) ManagerOption {
	return func(m *Manager) {
		m.evict = evict
	}
}

// NewManager initializes a Manager with its required collaborators.
func NewManager(api AuthAPI, store BlobStore, tokens TokenSink, options ...ManagerOption) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[NewManager] api is required")
	}
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewManager] token sink is required")
	}

	manager := &Manager{
		api:     api,
		store:   store,
		tokens:  tokens,
		nowTime: time.Now,
	}

	for _, opt := range options {
		opt(manager)
	}

	return manager, nil
}

// Current returns a copy of the active session, or nil when logged out.
func (m *Manager) Current() *Session {
	return m.snapshot()
}

// IsAuthenticated reports whether a session is present.
func (m *Manager) IsAuthenticated() bool {
	return m.snapshot() != nil
}

// SignIn authenticates with the backend and establishes the session. When
// the account matches the previous session's user, the previous capability
// record seeds the reconciliation so in-flight onboarding state survives;
// a different account starts from defaults.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	result, err := m.api.Login(ctx, email, password)
	if err != nil {
		return errors.Wrap(err, "[SignIn] login")
	}

	// Make the fresh token visible before the follow-up reads.
	m.tokens.SetAccessToken(result.AccessToken)

	// Best-effort profile read; session bootstrap never fails on it.
	if user, err := m.api.CurrentUser(ctx); err == nil && user != nil && user.ID != "" {
		result.User = *user
	} else if err != nil {
		log.Debug().Err(err).Msg("profile fetch after login failed")
	}

	capabilities := DefaultCapabilities()
	var preferred *AppMode
	if previous := m.snapshot(); previous != nil && previous.User.ID == result.User.ID {
		capabilities = previous.Capabilities
		preferred = previous.ActiveMode
	}

	capabilities = m.reconcile(ctx, capabilities)

	m.commit(buildSession(result, capabilities, ChooseActiveMode(preferred, capabilities)))
	return nil
}

// SignUp registers a new account. A brand-new account has no prior state to
// preserve: capabilities start at the default and no mode is active.
func (m *Manager) SignUp(ctx context.Context, input RegisterInput) error {
	result, err := m.api.Register(ctx, input)
	if err != nil {
		return errors.Wrap(err, "[SignUp] register")
	}

	m.commit(buildSession(result, DefaultCapabilities(), nil))
	return nil
}

// SignOut notifies the backend when a refresh token is present, then clears
// the session locally. The remote call is best-effort: sign-out succeeds
// even when the backend session is already invalid.
func (m *Manager) SignOut(ctx context.Context) {
	if current := m.snapshot(); current != nil && current.RefreshToken != "" {
		if err := m.api.Logout(ctx, current.RefreshToken); err != nil {
			log.Warn().Err(err).Msg("remote logout failed")
		}
	}
	m.commit(nil)
}

// CompleteOnboarding marks the given mode ready. The current active mode is
// kept when still ready; with no active mode, the mode just completed wins.
func (m *Manager) CompleteOnboarding(mode AppMode) {
	if !mode.Valid() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}

	next := m.current.clone()
	next.Capabilities.SetMode(mode, ModeCapability{Available: true, SetupStatus: SetupComplete})

	preferred := next.ActiveMode
	if preferred == nil {
		completed := mode
		preferred = &completed
	}
	next.ActiveMode = ChooseActiveMode(preferred, next.Capabilities)

	m.commitLocked(next)
}

// SetActiveMode switches the session into the target mode. A no-op when no
// session exists, the target is not ready, or it is already active. On a
// real switch the other mode's cached data is evicted exactly once.
func (m *Manager) SetActiveMode(mode AppMode) {
	m.mu.Lock()

	if m.current == nil || !m.current.Capabilities.Mode(mode).Ready() || (m.current.ActiveMode != nil && *m.current.ActiveMode == mode) {
		m.mu.Unlock()
		return
	}

	next := m.current.clone()
	active := mode
	next.ActiveMode = &active
	m.commitLocked(next)
	m.mu.Unlock()

	if m.evict != nil {
		m.evict(mode.Other())
	}
}

// RefreshCapabilities reconciles server-reported capabilities into the
// session. Commits only when the merge actually changed something, so
// redundant persistence writes are avoided. Fetch errors propagate and
// leave the session untouched.
func (m *Manager) RefreshCapabilities(ctx context.Context) error {
	current := m.snapshot()
	if current == nil {
		return nil
	}

	server, err := m.api.CurrentCapabilities(ctx)
	if err != nil {
		return errors.Wrap(err, "[RefreshCapabilities] fetch")
	}

	merged := MergeCapabilities(current.Capabilities, *server)
	active := ChooseActiveMode(current.ActiveMode, merged)
	if merged == current.Capabilities && sameMode(active, current.ActiveMode) {
		return nil
	}

	next := current.clone()
	next.Capabilities = merged
	next.ActiveMode = active
	m.commit(next)
	return nil
}

// RefreshAccessToken exchanges the refresh token for new credentials. The
// rebuilt session preserves capabilities and the active mode. A rejected
// refresh is terminal: the session is cleared locally, with no remote
// logout call, and an empty token is returned.
func (m *Manager) RefreshAccessToken(ctx context.Context) (string, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	current := m.snapshot()
	if current == nil || current.RefreshToken == "" {
		return "", nil
	}

	result, err := m.api.Refresh(ctx, current.RefreshToken)
	if err != nil {
		m.commit(nil)
		return "", errors.Wrap(err, "[RefreshAccessToken] refresh")
	}

	next := buildSession(result, current.Capabilities, ChooseActiveMode(current.ActiveMode, current.Capabilities))
	m.commit(next)
	return next.AccessToken, nil
}

// Hydrate loads the persisted session at process start. A corrupt or
// unrecognized blob is deleted and the client proceeds as logged out. An
// adopted session is re-persisted in the current shape, then either
// refreshed (when already expired) or reconciled against the server's
// capability state. Hydrate always completes before dependent callers may
// read session state.
func (m *Manager) Hydrate(ctx context.Context) error {
	raw, err := m.store.Read()
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCorruptedState) {
			m.discardStored(err)
			return nil
		}
		return errors.Wrap(err, "[Hydrate] store read")
	}
	if raw == nil {
		return nil
	}

	adopted, err := NormalizeStored(raw)
	if err != nil {
		m.discardStored(err)
		return nil
	}

	// Re-persisting upgrades legacy blobs to the current shape.
	m.commit(adopted)

	if adopted.Expired(m.nowTime()) {
		if _, err := m.RefreshAccessToken(ctx); err != nil {
			log.Warn().Err(err).Msg("token refresh during hydration failed")
		}
		return nil
	}

	// Catch capability changes that happened while the app was closed.
	if err := m.RefreshCapabilities(ctx); err != nil {
		log.Warn().Err(err).Msg("capability reconciliation during hydration failed")
	}
	return nil
}

// reconcile merges the server's capability view over the baseline,
// best-effort: when the fetch fails the baseline stands.
func (m *Manager) reconcile(ctx context.Context, baseline AccountCapabilities) AccountCapabilities {
	server, err := m.api.CurrentCapabilities(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("capability fetch failed, keeping local state")
		return baseline
	}
	return MergeCapabilities(baseline, *server)
}

func (m *Manager) discardStored(cause error) {
	log.Warn().Err(cause).Msg("discarding unreadable session blob")
	if err := m.store.Delete(); err != nil {
		log.Warn().Err(err).Msg("deleting session blob failed")
	}
}

func (m *Manager) snapshot() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current.clone()
}

func (m *Manager) commit(next *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitLocked(next)
}

// commitLocked adopts next as the session: memory first, then the transport
// token, then persistence. Persistence is best-effort; a failed write leaves
// memory correct and storage stale until the next commit.
func (m *Manager) commitLocked(next *Session) {
	m.current = next

	if next == nil {
		m.tokens.SetAccessToken("")
		if err := m.store.Delete(); err != nil {
			log.Warn().Err(err).Msg("deleting session blob failed")
		}
		return
	}

	m.tokens.SetAccessToken(next.AccessToken)

	blob, err := json.Marshal(next)
	if err != nil {
		log.Warn().Err(err).Msg("serializing session failed")
		return
	}
	if err := m.store.Write(blob); err != nil {
		log.Warn().Err(err).Msg("persisting session failed")
	}
}

func buildSession(result *AuthResult, capabilities AccountCapabilities, active *AppMode) *Session {
	return &Session{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    result.TokenType,
		ExpiresAt:    result.ExpiresAt,
		User:         result.User,
		Capabilities: capabilities,
		ActiveMode:   active,
	}
}
