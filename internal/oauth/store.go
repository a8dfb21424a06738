package oauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/scrypt"

	"cordctl/pkg/logging"
)

// DefaultRetention is how long a stored credential is honored before the
// store treats it as absent.
const DefaultRetention = 7 * 24 * time.Hour

// scrypt cost parameters for deriving the sealing key from the passphrase.
const (
	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// keySalt is a fixed salt for key derivation. The passphrase is the secret;
// the salt only separates this store's keys from other uses of the same
// passphrase.
var keySalt = []byte("cordctl-token-store")

// envelope is the on-disk shape of the sealed credential.
type envelope struct {
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// record is the plaintext payload inside the envelope.
type record struct {
	Credential *Credential `json:"credential"`
	StoredAt   time.Time   `json:"stored_at"`
}

// CredentialStore persists a single credential encrypted at rest.
// All failures on the read path degrade to "no credential": a corrupt or
// undecryptable file is cleared rather than surfaced as an error, so the
// caller falls back to a fresh sign-in.
type CredentialStore struct {
	path      string
	key       []byte
	retention time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewCredentialStore derives the sealing key from passphrase and returns a
// store backed by the file at path.
func NewCredentialStore(path, passphrase string, retention time.Duration) (*CredentialStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("credential store requires a non-empty encryption key")
	}
	key, err := scrypt.Key([]byte(passphrase), keySalt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive storage key: %w", err)
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &CredentialStore{
		path:      path,
		key:       key,
		retention: retention,
		now:       time.Now,
	}, nil
}

// Load returns the stored credential, or (nil, nil) when no usable credential
// exists. Corrupt and expired-retention files are removed.
func (s *CredentialStore) Load() (*Credential, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	rec, err := s.open(raw)
	if err != nil {
		logging.Warn("TokenStore", "Discarding unreadable credential file: %v", err)
		_ = os.Remove(s.path)
		return nil, nil
	}

	if s.now().Sub(rec.StoredAt) > s.retention {
		logging.Info("TokenStore", "Stored credential exceeded retention period, discarding")
		_ = os.Remove(s.path)
		return nil, nil
	}

	return rec.Credential, nil
}

// Save seals the credential and writes it with owner-only permissions.
func (s *CredentialStore) Save(cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("cannot store a nil credential")
	}

	raw, err := s.seal(&record{Credential: cred, StoredAt: s.now()})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	// Write via a temp file so a crash never leaves a half-written store.
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create credential file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to restrict credential file permissions: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

// Clear removes the stored credential. A missing file is not an error.
func (s *CredentialStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

func (s *CredentialStore) seal(rec *record) ([]byte, error) {
	plain, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plain, nil)
	env := envelope{
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(sealed),
	}
	out, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential envelope: %w", err)
	}
	return out, nil
}

func (s *CredentialStore) open(raw []byte) (*record, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("malformed nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("malformed nonce")
	}

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	var rec record
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, fmt.Errorf("malformed credential record: %w", err)
	}
	if rec.Credential == nil {
		return nil, fmt.Errorf("empty credential record")
	}
	return &rec, nil
}
