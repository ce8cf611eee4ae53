package sessionfakes

import (
	"context"
	"sync"

	"github.com/chalkfit/chalk-client-go/session"
)

var _ session.AuthAPI = (*FakeAuthAPI)(nil)

// FakeAuthAPI is a scriptable in-memory account service. Each operation
// returns the configured result or error and records that it was called.
type FakeAuthAPI struct {
	lock sync.Mutex

	LoginResult *session.AuthResult
	LoginErr    error
	LoginCalls  int

	RegisterResult *session.AuthResult
	RegisterErr    error
	RegisterCalls  int

	RefreshResult *session.AuthResult
	RefreshErr    error
	RefreshCalls  int
	RefreshTokens []string

	LogoutErr    error
	LogoutCalls  int
	LogoutTokens []string

	UserResult *session.UserSummary
	UserErr    error
	UserCalls  int

	CapabilitiesResult *session.AccountCapabilities
	CapabilitiesErr    error
	CapabilitiesCalls  int
}

func NewFakeAuthAPI() *FakeAuthAPI {
	return &FakeAuthAPI{}
}

func (f *FakeAuthAPI) Login(_ context.Context, _, _ string) (*session.AuthResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LoginCalls++
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	return cloneResult(f.LoginResult), nil
}

func (f *FakeAuthAPI) Register(_ context.Context, _ session.RegisterInput) (*session.AuthResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.RegisterCalls++
	if f.RegisterErr != nil {
		return nil, f.RegisterErr
	}
	return cloneResult(f.RegisterResult), nil
}

func (f *FakeAuthAPI) Refresh(_ context.Context, refreshToken string) (*session.AuthResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.RefreshCalls++
	f.RefreshTokens = append(f.RefreshTokens, refreshToken)
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	return cloneResult(f.RefreshResult), nil
}

func (f *FakeAuthAPI) Logout(_ context.Context, refreshToken string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.LogoutCalls++
	f.LogoutTokens = append(f.LogoutTokens, refreshToken)
	return f.LogoutErr
}

func (f *FakeAuthAPI) CurrentUser(_ context.Context) (*session.UserSummary, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.UserCalls++
	if f.UserErr != nil {
		return nil, f.UserErr
	}
	if f.UserResult == nil {
		return nil, nil
	}
	user := *f.UserResult
	return &user, nil
}

func (f *FakeAuthAPI) CurrentCapabilities(_ context.Context) (*session.AccountCapabilities, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.CapabilitiesCalls++
	if f.CapabilitiesErr != nil {
		return nil, f.CapabilitiesErr
	}
	if f.CapabilitiesResult == nil {
		capabilities := session.DefaultCapabilities()
		return &capabilities, nil
	}
	capabilities := *f.CapabilitiesResult
	return &capabilities, nil
}

func cloneResult(result *session.AuthResult) *session.AuthResult {
	if result == nil {
		return nil
	}
	clone := *result
	return &clone
}
