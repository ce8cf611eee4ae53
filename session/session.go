package session

import "time"

// AppMode identifies which side of the product a user is operating.
// Exactly two modes exist and they are mutually exclusive at runtime:
// a user may hold capabilities for both, but is active in at most one.
type AppMode string

const (
	ModeCoach  AppMode = "coach"
	ModeClient AppMode = "client"
)

// Valid reports whether m names one of the two known modes.
func (m AppMode) Valid() bool {
	return m == ModeCoach || m == ModeClient
}

// Other returns the opposite mode.
func (m AppMode) Other() AppMode {
	if m == ModeCoach {
		return ModeClient
	}
	return ModeCoach
}

// SetupStatus tracks progress through a mode's onboarding flow.
type SetupStatus string

const (
	SetupNotStarted SetupStatus = "not_started"
	SetupInProgress SetupStatus = "in_progress"
	SetupComplete   SetupStatus = "complete"
)

// ValidSetupStatus reports whether s is one of the known status values.
func ValidSetupStatus(s SetupStatus) bool {
	return s == SetupNotStarted || s == SetupInProgress || s == SetupComplete
}

// ModeCapability is the per-mode eligibility record.
// Invariant: SetupStatus == SetupComplete implies Available == true.
type ModeCapability struct {
	Available   bool        `json:"available"`   // Whether the user has ever engaged this mode
	SetupStatus SetupStatus `json:"setupStatus"` // Progress through the mode's onboarding
}

// Ready reports whether the mode can be activated.
func (c ModeCapability) Ready() bool {
	return c.Available && c.SetupStatus == SetupComplete
}

// AccountCapabilities holds the eligibility record for both modes.
// The two records are independent; a user may be ready in both at once.
type AccountCapabilities struct {
	Coach  ModeCapability `json:"coach"`
	Client ModeCapability `json:"client"`
}

// Mode returns the capability record for m.
func (a AccountCapabilities) Mode(m AppMode) ModeCapability {
	if m == ModeCoach {
		return a.Coach
	}
	return a.Client
}

// SetMode replaces the capability record for m.
func (a *AccountCapabilities) SetMode(m AppMode, c ModeCapability) {
	if m == ModeCoach {
		a.Coach = c
		return
	}
	a.Client = c
}

// UserSummary is the minimal user identity owned by the auth backend.
// Read-only to this subsystem; ID is the stable identifier.
type UserSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Session is the single authoritative record of who is logged in and what
// they can do. The in-memory copy owned by the Manager is the source of
// truth during a process lifetime; the persisted copy exists only to
// survive restarts and is re-validated on load.
type Session struct {
	AccessToken  string              `json:"accessToken"`  // Short-lived bearer credential
	RefreshToken string              `json:"refreshToken"` // Long-lived credential used to mint access tokens
	TokenType    string              `json:"tokenType"`    // Typically "Bearer"
	ExpiresAt    time.Time           `json:"expiresAt"`    // Absolute access-token expiry
	User         UserSummary         `json:"user"`
	Capabilities AccountCapabilities `json:"capabilities"`
	ActiveMode   *AppMode            `json:"activeMode"` // At most one mode, always a ready one, or nil
}

// Expired reports whether the access token is at or past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// clone returns an independent copy of s, safe to mutate.
func (s *Session) clone() *Session {
	next := *s
	if s.ActiveMode != nil {
		mode := *s.ActiveMode
		next.ActiveMode = &mode
	}
	return &next
}

// AuthResult is the outcome of a successful login, register, or refresh call.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         UserSummary
}
