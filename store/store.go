// Package store persists the one serialized session blob a device holds.
// The file-backed implementation seals the blob with AES-GCM under a key
// derived from a device secret, so the session record is never written to
// disk in the clear.
package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/chalkfit/chalk-client-go/internal/errors"
	"github.com/chalkfit/chalk-client-go/session"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	// blobFileName is the single fixed key the session blob lives under.
	blobFileName = "chalk.session.v1.enc"

	keyLength = 32
)

// keyInfo binds the derived key to this store's purpose.
var keyInfo = []byte("chalk-session-store")

// FileStore is the durable session store for one device.
type FileStore struct {
	path string
	aead cipher.AEAD
}

var _ session.BlobStore = (*FileStore)(nil)

// NewFileStore creates a store rooted at dir, sealing blobs under a key
// derived from secret with HKDF-SHA256.
func NewFileStore(dir string, secret []byte) (*FileStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("[NewFileStore] secret is required")
	}

	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, keyInfo), key); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] key derivation")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] gcm")
	}

	return &FileStore{
		path: filepath.Join(dir, blobFileName),
		aead: aead,
	}, nil
}

// Read returns the stored blob, or (nil, nil) when none exists. A blob that
// fails decryption is reported as ErrCorruptedState so the caller can
// discard it and proceed as logged out.
func (s *FileStore) Read() ([]byte, error) {
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[FileStore.Read] read file")
	}

	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptedState, "[FileStore.Read] sealed blob too short")
	}

	blob, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptedState, "[FileStore.Read] open sealed blob")
	}
	return blob, nil
}

// Write seals and persists the blob, replacing any previous one.
func (s *FileStore) Write(blob []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "[FileStore.Write] mkdir")
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return errors.Wrap(err, "[FileStore.Write] nonce")
	}

	sealed := s.aead.Seal(nonce, nonce, blob, nil)
	if err := os.WriteFile(s.path, sealed, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.Write] write file")
	}
	return nil
}

// Delete removes the stored blob. Deleting an absent blob is not an error.
func (s *FileStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Delete] remove")
	}
	return nil
}
