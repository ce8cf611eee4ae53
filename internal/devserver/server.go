// Package devserver is an in-memory implementation of the Chalk account
// service for local development. It issues real HS256 access tokens with
// short expiries and rotating refresh tokens, so the client's refresh and
// reconciliation paths can be exercised end to end without a backend
// deployment. Nothing survives a restart.
package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/chalkfit/chalk-client-go/authapi"
	"github.com/chalkfit/chalk-client-go/session"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	accessTokenTTL     = 15 * time.Minute
	refreshTokenTTL    = 7 * 24 * time.Hour
	refreshTokenLength = 32 // 32 bytes = 256 bits
)

type account struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Capabilities session.AccountCapabilities
}

type refreshRecord struct {
	UserID   string
	IssuedAt time.Time
}

// Server holds the in-memory account state and the token signing key.
type Server struct {
	signingKey []byte
	nowTime    func() time.Time

	lock          sync.Mutex
	accountsByID  map[string]*account
	accountIDs    map[string]string // email -> ID
	refreshTokens map[string]refreshRecord
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// New creates a Server with a random per-process signing key.
func New(options ...ServerOption) (*Server, error) {
	signingKey := make([]byte, 32)
	if _, err := rand.Read(signingKey); err != nil {
		return nil, errors.Wrap(err, "[devserver.New] signing key")
	}

	server := &Server{
		signingKey:    signingKey,
		nowTime:       time.Now,
		accountsByID:  make(map[string]*account),
		accountIDs:    make(map[string]string),
		refreshTokens: make(map[string]refreshRecord),
	}

	for _, opt := range options {
		opt(server)
	}

	return server, nil
}

// Handler returns the HTTP surface consumed by the mobile client, plus a
// capability-update endpoint used to drive onboarding state from the
// outside during development.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(requestLogging)

	router.HandleFunc(authapi.RegisterPath, s.register).Methods(http.MethodPost)
	router.HandleFunc(authapi.LoginPath, s.login).Methods(http.MethodPost)
	router.HandleFunc(authapi.RefreshPath, s.refresh).Methods(http.MethodPost)
	router.HandleFunc(authapi.LogoutPath, s.logout).Methods(http.MethodPost)

	router.HandleFunc(authapi.MePath, s.authenticated(s.me)).Methods(http.MethodGet)
	router.HandleFunc(authapi.CapabilitiesPath, s.authenticated(s.capabilities)).Methods(http.MethodGet)
	router.HandleFunc(authapi.CapabilitiesPath, s.authenticated(s.updateCapabilities)).Methods(http.MethodPut)

	return router
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// newRefreshToken mints a random refresh token and records its owner,
// replacing any token the user already held.
func (s *Server) newRefreshToken(userID string) (string, error) {
	for token, record := range s.refreshTokens {
		if record.UserID == userID {
			delete(s.refreshTokens, token)
		}
	}

	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[newRefreshToken] rand.Read")
	}

	token := hex.EncodeToString(tokenBytes)
	s.refreshTokens[token] = refreshRecord{UserID: userID, IssuedAt: s.nowTime()}
	return token, nil
}

func (s *Server) consumeRefreshToken(token string) (*account, bool) {
	record, ok := s.refreshTokens[token]
	if !ok {
		return nil, false
	}
	delete(s.refreshTokens, token)

	if s.nowTime().Sub(record.IssuedAt) > refreshTokenTTL {
		return nil, false
	}
	acct, ok := s.accountsByID[record.UserID]
	return acct, ok
}
