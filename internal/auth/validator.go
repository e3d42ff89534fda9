package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/pkg/utils"
)

// ErrInvalidToken токен не принят сервером авторизации
var ErrInvalidToken = errors.New("invalid or expired token")

const maxResponseBody = 64 << 10

// TokenValidator проверка токена оператора
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Operator, error)
}

// Validator проверяет токены через внешний HTTP сервис с кешем в Redis
type Validator struct {
	endpoint   string
	httpClient *http.Client
	cache      *Cache
	logger     *utils.Logger
}

var _ TokenValidator = (*Validator)(nil)

// NewValidator создает валидатор токенов. cache может быть nil.
func NewValidator(cfg *config.AuthConfig, cache *Cache, logger *utils.Logger) (*Validator, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("auth endpoint is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Validator{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		logger:     logger.WithField("component", "auth"),
	}, nil
}

// Validate возвращает оператора по токену
func (v *Validator) Validate(ctx context.Context, token string) (*Operator, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	if v.cache != nil {
		op, err := v.cache.Get(ctx, token)
		if err != nil {
			v.logger.WithField("error", err).Warn("Auth cache read failed")
		} else if op != nil {
			return op, nil
		}
	}

	op, err := v.remote(ctx, token)
	if err != nil {
		return nil, err
	}

	if v.cache != nil {
		if err := v.cache.Set(ctx, token, op); err != nil {
			v.logger.WithField("error", err).Warn("Auth cache write failed")
		}
	}
	v.logger.WithFields(map[string]interface{}{
		"operator_id": op.ID,
		"role":        op.Role,
	}).Debug("Token validated")
	return op, nil
}

// Invalidate забывает токен
func (v *Validator) Invalidate(ctx context.Context, token string) error {
	if v.cache == nil {
		return nil
	}
	return v.cache.Delete(ctx, token)
}

func (v *Validator) remote(ctx context.Context, token string) (*Operator, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach auth endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read auth response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var op Operator
		if err := json.Unmarshal(body, &op); err != nil {
			return nil, fmt.Errorf("failed to parse operator: %w", err)
		}
		return &op, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		v.logger.WithField("status_code", resp.StatusCode).Error("Unexpected auth endpoint response")
		return nil, fmt.Errorf("auth endpoint returned status %d", resp.StatusCode)
	}
}
