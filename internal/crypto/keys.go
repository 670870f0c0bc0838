package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of master and derived keys in bytes.
const KeySize = 32

// MasterKeyEnv names the environment variable holding the hex master key.
const MasterKeyEnv = "MASTER_KEY_HEX"

// ErrInvalidKeyLength is returned when a key is not KeySize bytes.
var ErrInvalidKeyLength = errors.New("invalid key length")

// ReadMasterKey returns the master key from MASTER_KEY_HEX, falling back
// to the hex contents of keyFile.
func ReadMasterKey(keyFile string) ([]byte, error) {
	h := os.Getenv(MasterKeyEnv)
	if h == "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("%s not set and %s not readable: %w", MasterKeyEnv, keyFile, err)
		}
		h = string(data)
	}
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes (hex %d chars)", ErrInvalidKeyLength, KeySize, KeySize*2)
	}
	return b, nil
}

// DeriveStoreKey derives the key for one named store from the master key
// using HKDF-SHA256, so the registry and the ledger never share a key.
func DeriveStoreKey(master []byte, store string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	h := hkdf.New(sha256.New, master, nil, []byte("qrattend-store:"+store))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateMasterKey returns a fresh random master key.
func GenerateMasterKey() ([]byte, error) {
	b := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
