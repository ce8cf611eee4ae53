package devserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/chalkfit/chalk-client-go/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const contentTypeJSON = "application/json; charset=utf-8"

type credentialsRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type capabilityUpdateRequest struct {
	Mode        string `json:"mode"`
	Available   bool   `json:"available"`
	SetupStatus string `json:"setup_status"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hashing failed")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.accountIDs[strings.ToLower(req.Email)]; exists {
		writeError(w, http.StatusConflict, "account already exists")
		return
	}

	acct := &account{
		ID:           uuid.New().String(),
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
		Capabilities: session.DefaultCapabilities(),
	}
	s.accountsByID[acct.ID] = acct
	s.accountIDs[strings.ToLower(req.Email)] = acct.ID

	s.writeAuthResult(w, http.StatusCreated, acct)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	id, ok := s.accountIDs[strings.ToLower(req.Email)]
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	acct := s.accountsByID[id]
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.writeAuthResult(w, http.StatusOK, acct)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	acct, ok := s.consumeRefreshToken(req.RefreshToken)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.writeAuthResult(w, http.StatusOK, acct)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.lock.Lock()
	delete(s.refreshTokens, req.RefreshToken)
	s.lock.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, acct *account) {
	writeJSON(w, http.StatusOK, userPayload(acct))
}

func (s *Server) capabilities(w http.ResponseWriter, r *http.Request, acct *account) {
	s.lock.Lock()
	capabilities := acct.Capabilities
	s.lock.Unlock()

	writeJSON(w, http.StatusOK, capabilitiesPayload(capabilities))
}

// updateCapabilities mutates one mode's record so onboarding flows can be
// simulated against the dev backend.
func (s *Server) updateCapabilities(w http.ResponseWriter, r *http.Request, acct *account) {
	var req capabilityUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	mode := session.AppMode(req.Mode)
	status := session.SetupStatus(req.SetupStatus)
	if !mode.Valid() || !session.ValidSetupStatus(status) {
		writeError(w, http.StatusBadRequest, "unknown mode or setup_status")
		return
	}

	s.lock.Lock()
	acct.Capabilities.SetMode(mode, session.ModeCapability{Available: req.Available, SetupStatus: status})
	capabilities := acct.Capabilities
	s.lock.Unlock()

	writeJSON(w, http.StatusOK, capabilitiesPayload(capabilities))
}

type authenticatedHandler func(w http.ResponseWriter, r *http.Request, acct *account)

// authenticated resolves the bearer token to an account or rejects with 401.
func (s *Server) authenticated(next authenticatedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		rawToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || rawToken == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (interface{}, error) {
			return s.signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.nowTime))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		subject, err := claims.GetSubject()
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}

		s.lock.Lock()
		acct, ok := s.accountsByID[subject]
		s.lock.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "unknown account")
			return
		}

		next(w, r, acct)
	}
}

// writeAuthResult issues a fresh token pair for acct. Caller holds the lock.
func (s *Server) writeAuthResult(w http.ResponseWriter, status int, acct *account) {
	now := s.nowTime()
	expiresAt := now.Add(accessTokenTTL)

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   acct.ID,
		"email": acct.Email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}).SignedString(s.signingKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token signing failed")
		return
	}

	refreshToken, err := s.newRefreshToken(acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "refresh token generation failed")
		return
	}

	writeJSON(w, status, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_at":    expiresAt.UTC().Format(time.RFC3339),
		"user":          userPayload(acct),
	})
}

func userPayload(acct *account) map[string]string {
	return map[string]string{
		"id":         acct.ID,
		"email":      acct.Email,
		"first_name": acct.FirstName,
		"last_name":  acct.LastName,
	}
}

func capabilitiesPayload(capabilities session.AccountCapabilities) map[string]interface{} {
	return map[string]interface{}{
		"coach":  capabilityPayload(capabilities.Coach),
		"client": capabilityPayload(capabilities.Client),
	}
}

func capabilityPayload(capability session.ModeCapability) map[string]interface{} {
	return map[string]interface{}{
		"available":    capability.Available,
		"setup_status": string(capability.SetupStatus),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
