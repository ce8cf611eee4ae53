package devserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chalkfit/chalk-client-go/authapi"
	"github.com/chalkfit/chalk-client-go/internal/devserver"
	apperrors "github.com/chalkfit/chalk-client-go/internal/errors"
	"github.com/chalkfit/chalk-client-go/session"
	"github.com/chalkfit/chalk-client-go/session/sessionfakes"
	"github.com/chalkfit/chalk-client-go/transport"
	"github.com/stretchr/testify/require"
)

type stack struct {
	serverURL string
	api       *authapi.Client
	manager   *session.Manager
	store     *sessionfakes.FakeBlobStore
	transport *transport.Transport
}

// setupStack wires the full client core against a dev backend: transport,
// typed API client, and manager with its auth handlers registered.
func setupStack(t *testing.T) *stack {
	t.Helper()

	backend, err := devserver.New()
	require.NoError(t, err)
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	tr := transport.New()
	api := authapi.New(server.URL, &http.Client{Transport: tr})
	blobs := sessionfakes.NewFakeBlobStore()

	manager, err := session.NewManager(api, blobs, tr)
	require.NoError(t, err)

	tr.SetAuthHandlers(transport.Handlers{
		OnRefreshToken: manager.RefreshAccessToken,
		OnAuthFailure:  func(ctx context.Context) { manager.SignOut(ctx) },
	})
	t.Cleanup(tr.ClearAuthHandlers)

	return &stack{serverURL: server.URL, api: api, manager: manager, store: blobs, transport: tr}
}

func (s *stack) signUp(t *testing.T) {
	t.Helper()
	input := session.RegisterInput{Email: "casey@example.com", Password: "secret", FirstName: "Casey", LastName: "Rowe"}
	require.NoError(t, s.manager.SignUp(context.Background(), input))
}

// completeServerOnboarding drives the dev backend's capability-update
// endpoint, the way an onboarding flow's final API call would.
func (s *stack) completeServerOnboarding(t *testing.T, mode session.AppMode) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"mode":         string(mode),
		"available":    true,
		"setup_status": "complete",
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, s.serverURL+authapi.CapabilitiesPath, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Transport: s.transport}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignUpThenSignInRoundTrip(t *testing.T) {
	s := setupStack(t)
	s.signUp(t)

	current := s.manager.Current()
	require.NotNil(t, current)
	require.Equal(t, "casey@example.com", current.User.Email)
	require.Equal(t, session.DefaultCapabilities(), current.Capabilities)

	s.manager.SignOut(context.Background())
	require.Nil(t, s.manager.Current())

	require.NoError(t, s.manager.SignIn(context.Background(), "casey@example.com", "secret"))
	require.NotNil(t, s.manager.Current())
}

func TestSignInWrongPassword(t *testing.T) {
	s := setupStack(t)
	s.signUp(t)

	err := s.manager.SignIn(context.Background(), "casey@example.com", "nope")
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestCapabilityReconciliationAgainstBackend(t *testing.T) {
	s := setupStack(t)
	s.signUp(t)

	s.completeServerOnboarding(t, session.ModeCoach)
	require.NoError(t, s.manager.RefreshCapabilities(context.Background()))

	current := s.manager.Current()
	require.True(t, current.Capabilities.Coach.Ready())
	require.NotNil(t, current.ActiveMode)
	require.Equal(t, session.ModeCoach, *current.ActiveMode)
}

func TestRefreshRotatesTokens(t *testing.T) {
	s := setupStack(t)
	s.signUp(t)
	before := s.manager.Current()

	token, err := s.manager.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	after := s.manager.Current()
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)

	// The rotated-out refresh token is dead; using it ends the session.
	_, err = s.api.Refresh(context.Background(), before.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	s := setupStack(t)
	s.signUp(t)
	refreshToken := s.manager.Current().RefreshToken

	s.manager.SignOut(context.Background())

	_, err := s.api.Refresh(context.Background(), refreshToken)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestStaleBearerTriggersTransparentRefresh(t *testing.T) {
	s := setupStack(t)
	s.signUp(t)

	// Simulate an expired in-memory token; the manager still holds a valid
	// refresh token, so the 401 should be absorbed by the interceptor.
	s.transport.SetAccessToken("stale-token")

	user, err := s.api.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "casey@example.com", user.Email)

	// The manager committed the refreshed session along the way.
	require.NotNil(t, s.manager.Current())
	require.NotEqual(t, "stale-token", s.manager.Current().AccessToken)
}
