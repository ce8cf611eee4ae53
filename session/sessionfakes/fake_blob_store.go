package sessionfakes

import (
	"sync"

	"github.com/chalkfit/chalk-client-go/session"
)

var _ session.BlobStore = (*FakeBlobStore)(nil)

// FakeBlobStore is an in-memory session store recording every write and
// delete.
type FakeBlobStore struct {
	lock sync.Mutex

	blob []byte

	ReadErr   error
	WriteErr  error
	DeleteErr error

	WriteCalls  int
	DeleteCalls int
}

func NewFakeBlobStore() *FakeBlobStore {
	return &FakeBlobStore{}
}

// Seed places a blob in the store without counting as a write.
func (s *FakeBlobStore) Seed(blob []byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.blob = append([]byte(nil), blob...)
}

// Blob returns the currently stored blob, or nil.
func (s *FakeBlobStore) Blob() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.blob == nil {
		return nil
	}
	return append([]byte(nil), s.blob...)
}

func (s *FakeBlobStore) Read() ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	if s.blob == nil {
		return nil, nil
	}
	return append([]byte(nil), s.blob...), nil
}

func (s *FakeBlobStore) Write(blob []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.WriteCalls++
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.blob = append([]byte(nil), blob...)
	return nil
}

func (s *FakeBlobStore) Delete() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.DeleteCalls++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.blob = nil
	return nil
}
