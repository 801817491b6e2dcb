package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const apiKeyPrefix = "oic_"

// GenerateAPIKey creates a new API key of the form oic_<uuid>_<secret>.
func GenerateAPIKey() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return fmt.Sprintf("%s%s_%s", apiKeyPrefix, uuid.NewString(), hex.EncodeToString(secretBytes)), nil
}

// ValidAPIKeyFormat checks the prefix and length of a key.
func ValidAPIKeyFormat(key string) bool {
	return len(key) == len(apiKeyPrefix)+36+1+64 && strings.HasPrefix(key, apiKeyPrefix)
}

// APIKeyID returns the public uuid part of a key, used as token subject.
func APIKeyID(key string) string {
	if !ValidAPIKeyFormat(key) {
		return ""
	}
	return key[len(apiKeyPrefix) : len(apiKeyPrefix)+36]
}
