// Package secrets provides authenticated, at-rest encrypted storage for
// sensitive values referenced from job configurations, plus resolution of
// the "secret:"/"env:"/"file:" value-expression grammar.
//
// The on-disk shape and the mutex-guarded in-memory map are grounded on
// oss.nandlabs.io/golly's secrets.localStore; the cipher is upgraded from
// that package's AES-CFB to AES-256-GCM so every write is authenticated,
// per this store's documented failure mode (tamper must be detected, not
// silently decrypted into garbage).
package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cronsentinel/cronsentinel/internal/errs"
	"github.com/cronsentinel/cronsentinel/internal/fileguard"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM standard nonce length
	filePerm  = 0o600
)

// Store is an encrypted-at-rest key/value secrets store with a
// read-through cache, backed by a single ciphertext file and a key file.
type Store struct {
	path    string
	keyPath string
	key     []byte

	mu     sync.RWMutex
	cache  map[string]string
	loaded bool
}

// New returns a Store bound to path (the ciphertext file) and keyPath (the
// key file). Neither file needs to exist yet: the key is generated on
// first use and the document is treated as empty until the first write.
func New(path, keyPath string) *Store {
	return &Store{path: path, keyPath: keyPath, cache: make(map[string]string)}
}

// ensureKey loads the key file, generating and persisting a new 32-byte
// key from crypto/rand if it is absent. Caller must hold s.mu.
func (s *Store) ensureKey() error {
	if s.key != nil {
		return nil
	}

	raw, err := os.ReadFile(s.keyPath)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil || len(key) != keySize {
			return errs.New(errs.Security, "Failed to load secrets: malformed key file")
		}
		s.key = key
		return nil
	}
	if !os.IsNotExist(err) {
		return errs.Wrap(errs.Security, err, "Failed to load secrets: cannot read key file")
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return errs.Wrap(errs.Security, err, "Failed to load secrets: cannot generate key")
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := fileguard.AtomicWrite(s.keyPath, []byte(encoded), filePerm); err != nil {
		return errs.Wrap(errs.Security, err, "Failed to load secrets: cannot write key file")
	}
	s.key = key
	return nil
}

// load reads and decrypts the document into the cache if it hasn't been
// loaded yet. Caller must hold s.mu (write lock).
func (s *Store) load() error {
	if s.loaded {
		return nil
	}
	if err := s.ensureKey(); err != nil {
		return err
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return errs.Wrap(errs.Security, err, "Failed to load secrets: cannot read store")
	}

	plaintext, err := decrypt(s.key, raw)
	if err != nil {
		return errs.Wrap(errs.Security, err, "Failed to load secrets: decryption failed")
	}

	var doc map[string]string
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return errs.Wrap(errs.Security, err, "Failed to load secrets: malformed document")
	}

	s.cache = doc
	s.loaded = true
	return nil
}

// persist re-encrypts the full in-memory document and writes it
// atomically. Caller must hold s.mu (write lock).
func (s *Store) persist() error {
	plaintext, err := json.Marshal(s.cache)
	if err != nil {
		return err
	}
	ciphertext, err := encrypt(s.key, plaintext)
	if err != nil {
		return errs.Wrap(errs.Security, err, "failed to encrypt secrets")
	}
	return fileguard.WithLock(s.path, func() error {
		return fileguard.AtomicWrite(s.path, ciphertext, filePerm)
	})
}

// Get returns the current value of k and whether it exists. Absent values
// are never cached; a cache hit short-circuits the decrypt-and-parse path
// for the lifetime of the Store instance.
func (s *Store) Get(k string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return "", false, err
	}
	v, ok := s.cache[k]
	return v, ok, nil
}

// Set merges k=v into the document, re-encrypts, and atomically rewrites
// the store file.
func (s *Store) Set(k, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	s.cache[k] = v
	return s.persist()
}

// Delete removes k if present, returning whether anything was removed.
func (s *Store) Delete(k string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return false, err
	}
	if _, ok := s.cache[k]; !ok {
		return false, nil
	}
	delete(s.cache, k)
	return true, s.persist()
}

// Keys returns all stored identifiers, lexicographically sorted.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(s.cache))
	for k := range s.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether k is present.
func (s *Store) Exists(k string) (bool, error) {
	_, ok, err := s.Get(k)
	return ok, err
}

// ImportFromEnv stores every process environment variable whose name
// begins with prefix, keyed by the remainder of the name, returning the
// count imported.
func (s *Store) ImportFromEnv(prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return 0, err
	}

	count := 0
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.TrimPrefix(name, prefix)
		if key == "" {
			continue
		}
		s.cache[key] = value
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return count, s.persist()
}

// Backup copies the ciphertext file to dst, reporting whether it wrote
// anything (false if the primary store file doesn't exist yet).
func (s *Store) Backup(dst string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := fileguard.AtomicWrite(dst, raw, filePerm); err != nil {
		return false, err
	}
	return true, nil
}

// Resolve resolves every value expression in mapping against this store
// and the process environment, per the secret:/env:/file: grammar. A nil
// or non-mapping input resolves to an empty mapping.
func (s *Store) Resolve(mapping map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(mapping))
	for k, expr := range mapping {
		resolved, err := s.resolveOne(expr)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func (s *Store) resolveOne(expr string) (string, error) {
	switch {
	case strings.HasPrefix(expr, "secret:"):
		key := strings.TrimPrefix(expr, "secret:")
		v, ok, err := s.Get(key)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errs.New(errs.Validation, "Secret not found: %s", key)
		}
		return v, nil
	case strings.HasPrefix(expr, "env:"):
		name := strings.TrimPrefix(expr, "env:")
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", errs.New(errs.Validation, "Environment variable not found: %s", name)
		}
		return v, nil
	case strings.HasPrefix(expr, "file:"):
		path := strings.TrimPrefix(expr, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errs.New(errs.Validation, "Cannot read file: %s", path)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return expr, nil
	}
}

// Mask renders v per the secrets-CLI masking rule: a value of 8 characters
// or fewer is fully masked, longer values show a 3-char prefix/suffix.
func Mask(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:3] + strings.Repeat("*", len(v)-6) + v[len(v)-3:]
}

func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	// Seal appends ciphertext||tag after nonce; the on-disk layout is
	// base64(iv || tag || ciphertext), so split and reorder.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext := sealed[:tagStart]
	tag := sealed[tagStart:]

	buf := make([]byte, 0, len(nonce)+len(tag)+len(ciphertext))
	buf = append(buf, nonce...)
	buf = append(buf, tag...)
	buf = append(buf, ciphertext...)

	encoded := base64.StdEncoding.EncodeToString(buf)
	return []byte(encoded), nil
}

func decrypt(key, encoded []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(encoded)))
	if err != nil {
		return nil, fmt.Errorf("malformed base64: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(raw) < nonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+gcm.Overhead()]
	ciphertext := raw[nonceSize+gcm.Overhead():]

	// Reassemble into the ciphertext||tag shape cipher.AEAD.Open expects.
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return plaintext, nil
}
