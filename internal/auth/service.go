package auth

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/config"
)

type Scope string

const (
	ScopeRead  Scope = "sensors:read"
	ScopeWrite Scope = "sensors:write"
)

var (
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrNoAPIKey      = errors.New("no api key configured")
)

// AuthService exchanges the configured API key for short lived JWTs that
// authorise sensor writes.
type AuthService struct {
	jwtHandler *JWTHandler
	hasher     *KeyHasher
	apiKeyHash string
	logger     *zap.Logger
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	if !cfg.IsProductionReady() {
		logger.Warn("JWT secret is not production ready", zap.String("env", cfg.JWTSecretEnv))
	}
	return &AuthService{
		jwtHandler: NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		hasher:     NewKeyHasher(),
		apiKeyHash: cfg.APIKeyHash,
		logger:     logger,
	}
}

func (a *AuthService) JWT() *JWTHandler { return a.jwtHandler }

// IssueToken verifies apiKey and returns a token with read and write scope.
func (a *AuthService) IssueToken(apiKey, ipAddress string) (string, time.Time, error) {
	if a.apiKeyHash == "" {
		return "", time.Time{}, ErrNoAPIKey
	}
	if !ValidAPIKeyFormat(apiKey) {
		a.logger.Warn("Token request with malformed key", zap.String("ip", ipAddress))
		return "", time.Time{}, ErrInvalidAPIKey
	}

	ok, err := a.hasher.Verify(apiKey, a.apiKeyHash)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to verify api key: %w", err)
	}
	if !ok {
		a.logger.Warn("Token request with wrong key", zap.String("ip", ipAddress))
		return "", time.Time{}, ErrInvalidAPIKey
	}

	token, expires, err := a.jwtHandler.GenerateAccessToken(APIKeyID(apiKey), ScopeRead, ScopeWrite)
	if err != nil {
		return "", time.Time{}, err
	}
	a.logger.Info("Token issued", zap.String("subject", APIKeyID(apiKey)), zap.String("ip", ipAddress))
	return token, expires, nil
}
