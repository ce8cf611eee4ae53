package authapi

import (
	"time"

	apperrors "github.com/chalkfit/chalk-client-go/internal/errors"
	"github.com/chalkfit/chalk-client-go/session"
)

// REST paths of the consumed account service.
const (
	LoginPath        = "/api/v1/auth/login"
	RegisterPath     = "/api/v1/auth/register"
	RefreshPath      = "/api/v1/auth/refresh"
	LogoutPath       = "/api/v1/auth/logout"
	MePath           = "/api/v1/users/me"
	CapabilitiesPath = "/api/v1/users/capabilities"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type authResultPayload struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresAt    string      `json:"expires_at"`
	User         userPayload `json:"user"`
}

type capabilityPayload struct {
	Available   bool   `json:"available"`
	SetupStatus string `json:"setup_status"`
}

type capabilitiesPayload struct {
	Coach  capabilityPayload `json:"coach"`
	Client capabilityPayload `json:"client"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (p *authResultPayload) toAuthResult() (*session.AuthResult, error) {
	expiresAt, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrTransport, "malformed expires_at %q", p.ExpiresAt)
	}
	return &session.AuthResult{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresAt:    expiresAt,
		User:         p.User.toSummary(),
	}, nil
}

func (p userPayload) toSummary() session.UserSummary {
	return session.UserSummary{
		ID:        p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
}

func (p capabilitiesPayload) toCapabilities() session.AccountCapabilities {
	return session.AccountCapabilities{
		Coach:  p.Coach.toCapability(),
		Client: p.Client.toCapability(),
	}
}

// toCapability maps one reported mode record, defaulting an unknown status
// to not_started rather than trusting the payload shape.
func (p capabilityPayload) toCapability() session.ModeCapability {
	status := session.SetupStatus(p.SetupStatus)
	if !session.ValidSetupStatus(status) {
		status = session.SetupNotStarted
	}
	return session.ModeCapability{Available: p.Available, SetupStatus: status}
}
