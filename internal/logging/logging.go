// Package logging configures the global zerolog logger and provides helpers
// for logging credentials without leaking them.
package logging

import (
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

const envDev = "DEV"

// Setup points the global logger at stderr. DEV gets a human readable
// console writer; everything else gets JSON lines.
func Setup(env, level string) {
	setup(os.Stderr, env, level)
}

func setup(out io.Writer, env, level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if strings.EqualFold(env, envDev) {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// Fingerprint returns a short stable identifier for a secret. Two equal
// secrets produce the same fingerprint; the secret cannot be recovered.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}
