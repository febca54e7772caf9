// AngelaMos | 2026
// key.go

package apikey

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
)

const (
	randomBytes     = 32
	displayHexChars = 12

	// KeyLength is the full key: literal prefix plus 64 hex characters.
	KeyLength = len(core.APIKeyPrefix) + randomBytes*2
	// PrefixLength is the stored, displayable lookup prefix.
	PrefixLength = len(core.APIKeyPrefix) + displayHexChars
)

type Generated struct {
	FullKey string
	Prefix  string
	Hash    string
}

// Generate draws a new key. Neither Prefix nor Hash reveals the full key.
func Generate() (*Generated, error) {
	random, err := core.GenerateSecureToken(randomBytes)
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	full := core.APIKeyPrefix + random
	return &Generated{
		FullKey: full,
		Prefix:  full[:PrefixLength],
		Hash:    core.HashToken(full),
	}, nil
}

// LooksLikeKey reports whether s has the machine-key shape. Used to refuse
// keys where a third-party credential is expected.
func LooksLikeKey(s string) bool {
	return strings.HasPrefix(s, core.APIKeyPrefix)
}

func wellFormed(s string) bool {
	if len(s) != KeyLength || !LooksLikeKey(s) {
		return false
	}
	_, err := hex.DecodeString(s[len(core.APIKeyPrefix):])
	return err == nil
}
