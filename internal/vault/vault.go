// Package vault protects saved credential material (cookies) handed to
// the extraction tool. Ciphertext lives on disk per job id, plaintext
// exists only as a throwaway file for the duration of one tool run.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrNoCredentials = errors.New("no credentials stored")

// Encrypt seals plaintext with AES-GCM under key. The nonce is
// prepended to the returned ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

// NewKey generates a random 256 bit key.
func NewKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Keeper owns the credentials directory and the encrypt/decrypt/file
// lifecycle for per-job credential material.
type Keeper struct {
	dir string
	key []byte
}

func NewKeeper(dir string, key []byte) (*Keeper, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(key))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating credentials dir: %w", err)
	}
	return &Keeper{dir: dir, key: key}, nil
}

func (k *Keeper) cipherPath(id string) string {
	return filepath.Join(k.dir, id+".cred")
}

func (k *Keeper) plainPath(id string) string {
	return filepath.Join(k.dir, id+".plain")
}

// Store encrypts plaintext and persists it keyed by job id.
func (k *Keeper) Store(id string, plaintext []byte) error {
	sealed, err := Encrypt(plaintext, k.key)
	if err != nil {
		return fmt.Errorf("encrypting credentials: %w", err)
	}
	if err := os.WriteFile(k.cipherPath(id), sealed, 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// Has reports whether ciphertext for the id exists on disk.
func (k *Keeper) Has(id string) bool {
	_, err := os.Stat(k.cipherPath(id))
	return err == nil
}

// Materialize decrypts the stored ciphertext into a throwaway plaintext
// file readable by the tool. The returned cleanup removes the plaintext
// file and must run on every exit path of the job.
func (k *Keeper) Materialize(id string) (string, func(), error) {
	sealed, err := os.ReadFile(k.cipherPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil, ErrNoCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("reading credentials: %w", err)
	}
	plaintext, err := Decrypt(sealed, k.key)
	if err != nil {
		return "", nil, fmt.Errorf("decrypting credentials: %w", err)
	}
	path := k.plainPath(id)
	if err := os.WriteFile(path, plaintext, 0o600); err != nil {
		return "", nil, fmt.Errorf("writing plaintext credentials: %w", err)
	}
	cleanup := func() {
		_ = os.Remove(path)
	}
	return path, cleanup, nil
}

// Remove deletes both the ciphertext and any leftover plaintext file.
// Removing absent files is not an error.
func (k *Keeper) Remove(id string) error {
	var errs []error
	for _, path := range []string{k.cipherPath(id), k.plainPath(id)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
