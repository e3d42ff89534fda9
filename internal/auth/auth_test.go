package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/pkg/utils"
)

// MockRedisClient для тестирования
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewStringCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	}
	return cmd
}

func (m *MockRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(int64(args.Int(0)))
	}
	return cmd
}

// staticValidator валидатор по таблице токенов
type staticValidator map[string]*Operator

func (s staticValidator) Validate(_ context.Context, token string) (*Operator, error) {
	if token == "broken" {
		return nil, errors.New("connection refused")
	}
	op, ok := s[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return op, nil
}

func testLogger() *utils.Logger {
	return utils.NewLogger("error", "text")
}

func TestOperator_Permissions(t *testing.T) {
	tests := []struct {
		name       string
		op         Operator
		canCommand bool
		ownsDevice bool
	}{
		{"viewer", Operator{Role: RoleViewer}, false, true},
		{"pilot any device", Operator{Role: RolePilot}, true, true},
		{"pilot own device", Operator{Role: RolePilot, Devices: []string{"vario-1"}}, true, true},
		{"pilot foreign device", Operator{Role: RolePilot, Devices: []string{"vario-2"}}, true, false},
		{"admin", Operator{Role: RoleAdmin, Devices: []string{"vario-2"}}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canCommand, tt.op.CanCommand())
			assert.Equal(t, tt.ownsDevice, tt.op.OwnsDevice("vario-1"))
		})
	}
}

func TestCache_SetAndGet(t *testing.T) {
	client := &MockRedisClient{}
	cache := NewCache(client, 5*time.Minute)
	ctx := context.Background()
	op := &Operator{ID: 7, Name: "Crew", Role: RolePilot, Devices: []string{"vario-1"}}
	data, err := op.toJSON()
	require.NoError(t, err)

	key := tokenKey("secret")
	assert.NotContains(t, key, "secret")
	client.On("Set", ctx, key, data, 5*time.Minute).Return(nil)
	client.On("Get", ctx, key).Return(string(data), nil)

	require.NoError(t, cache.Set(ctx, "secret", op))
	got, err := cache.Get(ctx, "secret")
	require.NoError(t, err)
	assert.Equal(t, op, got)
	client.AssertExpectations(t)
}

func TestCache_GetMissing(t *testing.T) {
	client := &MockRedisClient{}
	client.On("Get", mock.Anything, mock.Anything).Return("", redis.Nil)

	got, err := NewCache(client, time.Minute).Get(context.Background(), "none")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_Delete(t *testing.T) {
	client := &MockRedisClient{}
	client.On("Del", mock.Anything, []string{tokenKey("secret")}).Return(1, nil)

	assert.NoError(t, NewCache(client, time.Minute).Delete(context.Background(), "secret"))
	client.AssertExpectations(t)
}

func TestNewValidator_Validation(t *testing.T) {
	_, err := NewValidator(nil, nil, testLogger())
	assert.Error(t, err)
	_, err = NewValidator(&config.AuthConfig{}, nil, testLogger())
	assert.Error(t, err)
	_, err = NewValidator(&config.AuthConfig{Endpoint: "http://x"}, nil, nil)
	assert.Error(t, err)
}

func TestValidator_Remote(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			json.NewEncoder(w).Encode(Operator{ID: 1, Name: "Pilot", Role: RolePilot})
		case "Bearer boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	v, err := NewValidator(&config.AuthConfig{Endpoint: server.URL, Timeout: time.Second}, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	op, err := v.Validate(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, 1, op.ID)

	_, err = v.Validate(ctx, "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Validate(ctx, "boom")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)

	_, err = v.Validate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, int32(3), calls.Load())
}

func TestValidator_CacheHitSkipsRemote(t *testing.T) {
	op := &Operator{ID: 2, Role: RoleAdmin}
	data, _ := op.toJSON()
	client := &MockRedisClient{}
	client.On("Get", mock.Anything, tokenKey("cached")).Return(string(data), nil)

	v, err := NewValidator(&config.AuthConfig{Endpoint: "http://127.0.0.1:1", Timeout: time.Second},
		NewCache(client, time.Minute), testLogger())
	require.NoError(t, err)

	got, err := v.Validate(context.Background(), "cached")
	require.NoError(t, err)
	assert.Equal(t, op, got)
	client.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestValidator_CacheMissStores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Operator{ID: 3, Role: RolePilot})
	}))
	defer server.Close()

	client := &MockRedisClient{}
	client.On("Get", mock.Anything, mock.Anything).Return("", redis.Nil)
	client.On("Set", mock.Anything, tokenKey("fresh"), mock.AnythingOfType("[]uint8"), 10*time.Minute).Return(nil)

	v, err := NewValidator(&config.AuthConfig{Endpoint: server.URL, Timeout: time.Second},
		NewCache(client, 10*time.Minute), testLogger())
	require.NoError(t, err)

	op, err := v.Validate(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, 3, op.ID)
	client.AssertExpectations(t)
}

func TestMiddleware_RequireCommand(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := staticValidator{
		"pilot":  {ID: 1, Role: RolePilot},
		"viewer": {ID: 2, Role: RoleViewer},
	}
	router := gin.New()
	router.Use(NewMiddleware(validator, testLogger()).RequireCommand())
	router.PUT("/cmd", func(c *gin.Context) {
		op, ok := GetOperator(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": op.ID})
	})

	tests := []struct {
		name   string
		header string
		query  string
		status int
		code   string
	}{
		{"missing", "", "", http.StatusUnauthorized, "missing_token"},
		{"invalid", "Bearer nope", "", http.StatusUnauthorized, "invalid_token"},
		{"viewer", "Bearer viewer", "", http.StatusForbidden, "insufficient_permissions"},
		{"service down", "Bearer broken", "", http.StatusServiceUnavailable, "auth_unavailable"},
		{"pilot header", "bearer pilot", "", http.StatusOK, ""},
		{"pilot query", "", "?token=pilot", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/cmd"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.code, body["code"])
			}
		})
	}
}

func BenchmarkCache_Set(b *testing.B) {
	client := &MockRedisClient{}
	client.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	cache := NewCache(client, 5*time.Minute)
	op := &Operator{ID: 1, Role: RolePilot}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Set(ctx, "token", op)
	}
}
