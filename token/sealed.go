package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	gwerrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sealed:v1:"
	KeySize      = 32
	nonceSize    = 24
)

// SealedStore encrypts the refresh token before it reaches the wrapped
// store. The access and public tokens are stored as they are.
type SealedStore struct {
	inner Store
	key   [KeySize]byte
}

var _ Store = (*SealedStore)(nil)

func NewSealedStore(inner Store, key []byte) (*SealedStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("[token.NewSealedStore] inner store is required")
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("[token.NewSealedStore] key must be %d bytes, got %d", KeySize, len(key))
	}
	s := &SealedStore{inner: inner}
	copy(s.key[:], key)
	return s, nil
}

// ParseSealKey decodes a hex encoded sealing key.
func ParseSealKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("[token.ParseSealKey] decode: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("[token.ParseSealKey] key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

func (s *SealedStore) Load(ctx context.Context) (Set, error) {
	set, err := s.inner.Load(ctx)
	if err != nil {
		return Set{}, err
	}
	if set.RefreshToken == "" {
		return set, nil
	}
	plain, err := s.open(set.RefreshToken)
	if err != nil {
		return Set{}, gwerrors.Wrapf(err, "[SealedStore.Load] refresh token")
	}
	set.RefreshToken = plain
	return set, nil
}

func (s *SealedStore) Save(ctx context.Context, set Set) error {
	if set.RefreshToken != "" {
		sealed, err := s.seal(set.RefreshToken)
		if err != nil {
			return gwerrors.Wrapf(err, "[SealedStore.Save] refresh token")
		}
		set.RefreshToken = sealed
	}
	return s.inner.Save(ctx, set)
}

func (s *SealedStore) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

func (s *SealedStore) seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(box), nil
}

func (s *SealedStore) open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, sealedPrefix)
	if !ok {
		return "", fmt.Errorf("%w: value is not sealed", gwerrors.ErrMalformedToken)
	}
	box, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: sealed value is corrupt", gwerrors.ErrMalformedToken)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("%w: sealed value failed authentication", gwerrors.ErrMalformedToken)
	}
	return string(plain), nil
}
