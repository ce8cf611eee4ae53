package session

import "context"

// RegisterInput carries the profile fields a new account is created with.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthAPI is the remote account service consumed by the Manager. Login,
// register, and refresh are the session-establishing calls; the two reads
// require a valid bearer token on the underlying transport.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	CurrentUser(ctx context.Context) (*UserSummary, error)
	CurrentCapabilities(ctx context.Context) (*AccountCapabilities, error)
}

// BlobStore persists one serialized session blob under a single fixed key.
// Read returns (nil, nil) when no blob is stored.
type BlobStore interface {
	Read() ([]byte, error)
	Write(blob []byte) error
	Delete() error
}

// TokenSink receives the current access token so outbound requests can carry
// it. An empty token clears it. The transport's copy is derived state and is
// always overwritable.
type TokenSink interface {
	SetAccessToken(token string)
}

// Evictor is notified when a mode switch leaves a mode, so data cached for
// that mode cannot leak into the newly active one.
type Evictor func(mode AppMode)
