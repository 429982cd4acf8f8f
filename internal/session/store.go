package session

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/user/seller-collector/internal/domain"
)

// KV is the persistence backend for encrypted session records. Absent keys
// are reported as domain.ErrNoSession.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store persists one sealed record per service. Records are encrypted with
// XChaCha20-Poly1305; the key is derived from externally supplied material
// and never written next to the records.
type Store struct {
	kv     KV
	aead   cipher.AEAD
	logger *zap.Logger
}

// NewStore derives the sealing key from keyMaterial via HKDF-SHA256.
func NewStore(kv KV, keyMaterial []byte, logger *zap.Logger) (*Store, error) {
	if len(keyMaterial) == 0 {
		return nil, errors.New("session store key material is empty")
	}
	h := hkdf.New(sha256.New, keyMaterial, nil, []byte("session-store"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}
	return &Store{kv: kv, aead: aead, logger: logger}, nil
}

// Load returns the stored record for a service. Corrupted records (failed
// decryption or deserialization) are deleted and reported as absent; this
// is never fatal.
func (s *Store) Load(ctx context.Context, serviceID string) (*domain.SessionRecord, error) {
	sealed, err := s.kv.Get(ctx, serviceID)
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			return nil, domain.ErrNoSession
		}
		return nil, fmt.Errorf("loading session for %s: %w", serviceID, err)
	}

	record, err := s.open(sealed)
	if err != nil {
		s.logger.Warn("session record corrupted, discarding",
			zap.String("service", serviceID), zap.Error(err))
		if delErr := s.kv.Delete(ctx, serviceID); delErr != nil {
			s.logger.Warn("failed to delete corrupted session",
				zap.String("service", serviceID), zap.Error(delErr))
		}
		return nil, domain.ErrNoSession
	}
	return record, nil
}

// Save seals and persists the record.
func (s *Store) Save(ctx context.Context, record *domain.SessionRecord) error {
	sealed, err := s.seal(record)
	if err != nil {
		return fmt.Errorf("sealing session for %s: %w", record.ServiceID, err)
	}
	if err := s.kv.Set(ctx, record.ServiceID, sealed); err != nil {
		return fmt.Errorf("saving session for %s: %w", record.ServiceID, err)
	}
	return nil
}

// Delete removes the record for a service.
func (s *Store) Delete(ctx context.Context, serviceID string) error {
	return s.kv.Delete(ctx, serviceID)
}

func (s *Store) seal(record *domain.SessionRecord) ([]byte, error) {
	plain, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Store) open(sealed []byte) (*domain.SessionRecord, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, errors.New("sealed record too short")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	var record domain.SessionRecord
	if err := json.Unmarshal(plain, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// FileKV stores sealed records as files under a directory, one per service.
type FileKV struct {
	dir string
}

func NewFileKV(dir string) *FileKV {
	return &FileKV{dir: dir}
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, key+".session")
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNoSession
		}
		return nil, err
	}
	return data, nil
}

func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.path(key), value, 0o600)
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
