package session

import (
	"encoding/json"
	"time"

	apperrors "github.com/chalkfit/chalk-client-go/internal/errors"
)

// storedSession is the persisted wire shape. It covers two generations of
// the blob: the current dual-capability shape, and the older single-role
// shape (role + onboardingComplete) which is still readable but never
// written back.
type storedSession struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	TokenType    string          `json:"tokenType"`
	ExpiresAt    string          `json:"expiresAt"`
	User         json.RawMessage `json:"user"`
	Capabilities json.RawMessage `json:"capabilities"`
	ActiveMode   *string         `json:"activeMode"`

	// Legacy single-role fields
	Role               *string `json:"role"`
	OnboardingComplete *bool   `json:"onboardingComplete"`
}

type storedCapabilities struct {
	Coach  json.RawMessage `json:"coach"`
	Client json.RawMessage `json:"client"`
}

// NormalizeStored parses a persisted session blob into a valid Session,
// migrating the legacy single-role shape when present. Persisted JSON is
// never trusted structurally: malformed capability sub-fields fall back to
// safe defaults, while a missing credential or user invalidates the whole
// record with ErrCorruptedState.
func NormalizeStored(raw []byte) (*Session, error) {
	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptedState, "[NormalizeStored] unmarshal")
	}

	if stored.AccessToken == "" || stored.RefreshToken == "" || stored.TokenType == "" {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptedState, "[NormalizeStored] missing credential fields")
	}

	expiresAt, err := time.Parse(time.RFC3339, stored.ExpiresAt)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptedState, "[NormalizeStored] expiresAt %q", stored.ExpiresAt)
	}

	var user UserSummary
	if len(stored.User) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptedState, "[NormalizeStored] missing user")
	}
	if err := json.Unmarshal(stored.User, &user); err != nil || user.ID == "" {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptedState, "[NormalizeStored] user record")
	}

	capabilities := normalizeCapabilities(&stored)

	preferred := preferredMode(&stored)

	return &Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		ExpiresAt:    expiresAt,
		User:         user,
		Capabilities: capabilities,
		ActiveMode:   ChooseActiveMode(preferred, capabilities),
	}, nil
}

// normalizeCapabilities reconstructs the capability record. Legacy blobs
// synthesize the one engaged mode from role/onboardingComplete; modern blobs
// are parsed field by field with per-field defaults.
func normalizeCapabilities(stored *storedSession) AccountCapabilities {
	if stored.Role != nil || stored.OnboardingComplete != nil {
		return legacyCapabilities(stored)
	}

	capabilities := DefaultCapabilities()
	if len(stored.Capabilities) == 0 {
		return capabilities
	}

	var modes storedCapabilities
	if err := json.Unmarshal(stored.Capabilities, &modes); err != nil {
		return capabilities
	}
	capabilities.Coach = parseStoredCapability(modes.Coach)
	capabilities.Client = parseStoredCapability(modes.Client)
	return capabilities
}

func legacyCapabilities(stored *storedSession) AccountCapabilities {
	capabilities := DefaultCapabilities()

	if stored.Role == nil || !AppMode(*stored.Role).Valid() {
		return capabilities
	}

	status := SetupInProgress
	if stored.OnboardingComplete != nil && *stored.OnboardingComplete {
		status = SetupComplete
	}
	capabilities.SetMode(AppMode(*stored.Role), ModeCapability{Available: true, SetupStatus: status})
	return capabilities
}

// parseStoredCapability decodes one mode's record, defaulting each
// missing or mistyped sub-field independently. A complete status always
// implies availability.
func parseStoredCapability(raw json.RawMessage) ModeCapability {
	capability := ModeCapability{Available: false, SetupStatus: SetupNotStarted}
	if len(raw) == 0 {
		return capability
	}

	var fields struct {
		Available   json.RawMessage `json:"available"`
		SetupStatus json.RawMessage `json:"setupStatus"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return capability
	}

	if len(fields.Available) > 0 {
		var available bool
		if err := json.Unmarshal(fields.Available, &available); err == nil {
			capability.Available = available
		}
	}
	if len(fields.SetupStatus) > 0 {
		var status string
		if err := json.Unmarshal(fields.SetupStatus, &status); err == nil && ValidSetupStatus(SetupStatus(status)) {
			capability.SetupStatus = SetupStatus(status)
		}
	}
	if capability.SetupStatus == SetupComplete {
		capability.Available = true
	}
	return capability
}

// preferredMode resolves the stored active-mode preference, falling back to
// the legacy role when the modern field is absent.
func preferredMode(stored *storedSession) *AppMode {
	if stored.ActiveMode != nil && AppMode(*stored.ActiveMode).Valid() {
		mode := AppMode(*stored.ActiveMode)
		return &mode
	}
	if stored.Role != nil && AppMode(*stored.Role).Valid() {
		mode := AppMode(*stored.Role)
		return &mode
	}
	return nil
}
