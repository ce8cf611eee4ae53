package sessionfakes

import (
	"sync"

	"github.com/chalkfit/chalk-client-go/session"
)

var _ session.TokenSink = (*FakeTokenSink)(nil)

// FakeTokenSink records every access token handed to the transport.
type FakeTokenSink struct {
	lock   sync.Mutex
	tokens []string
}

func NewFakeTokenSink() *FakeTokenSink {
	return &FakeTokenSink{}
}

func (s *FakeTokenSink) SetAccessToken(token string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tokens = append(s.tokens, token)
}

// Current returns the most recently set token, or "".
func (s *FakeTokenSink) Current() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.tokens) == 0 {
		return ""
	}
	return s.tokens[len(s.tokens)-1]
}

// History returns every token set, in order.
func (s *FakeTokenSink) History() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.tokens...)
}
