package secret

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/smallbiznis/revenuepulse/internal/config"
)

const (
	keyLen   = 32
	nonceLen = 24

	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4

	developmentPassphrase = "revenuepulse-development"
	derivationSalt        = "revenuepulse.credential.v1"
)

var (
	ErrMissingKey  = errors.New("credential_seal_key_missing")
	ErrMalformed   = errors.New("sealed_value_malformed")
	ErrOpenFailed  = errors.New("sealed_value_unreadable")
	ErrEmptySecret = errors.New("secret_empty")
)

var Module = fx.Module("secret",
	fx.Provide(NewSealer),
)

// Sealer encrypts credentials before they leave the process.
type Sealer struct {
	key [keyLen]byte
}

// NewSealer reads CREDENTIAL_SEAL_KEY as 32 bytes of hex or base64. Any
// other value is treated as a passphrase and stretched with argon2id.
func NewSealer(cfg config.Config, log *zap.Logger) (*Sealer, error) {
	raw := strings.TrimSpace(cfg.CredentialSealKey)
	if raw == "" {
		if cfg.IsProduction() {
			return nil, ErrMissingKey
		}
		log.Named("secret").Warn("CREDENTIAL_SEAL_KEY not set, using development key")
		raw = developmentPassphrase
	}
	return NewSealerFromKey(raw), nil
}

func NewSealerFromKey(raw string) *Sealer {
	s := &Sealer{}
	copy(s.key[:], parseKey(raw))
	return s
}

func parseKey(raw string) []byte {
	if b, err := hex.DecodeString(raw); err == nil && len(b) == keyLen {
		return b
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == keyLen {
		return b
	}
	return argon2.IDKey([]byte(raw), []byte(derivationSalt), argonTime, argonMemory, argonThreads, keyLen)
}

// Seal returns base64(nonce || box).
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptySecret
	}
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	box, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(box) <= nonceLen+secretbox.Overhead {
		return "", ErrMalformed
	}
	var nonce [nonceLen]byte
	copy(nonce[:], box[:nonceLen])

	plaintext, ok := secretbox.Open(nil, box[nonceLen:], &nonce, &s.key)
	if !ok {
		return "", ErrOpenFailed
	}
	return string(plaintext), nil
}
