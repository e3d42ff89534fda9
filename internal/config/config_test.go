package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, "racing", cfg.Engine.TaskType)
	assert.Equal(t, 3*time.Hour, cfg.Engine.AATMinTime)
	assert.Equal(t, 300.0, cfg.Engine.SafetyHeight)
	assert.Equal(t, uint(5), cfg.Redis.GeohashPrecision)
	assert.Equal(t, "taskengine/+/fix", cfg.MQTT.FixTopic)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("TASK_TYPE", "aat")
	t.Setenv("AAT_MIN_TIME", "2h30m")
	t.Setenv("MC", "1.5")
	t.Setenv("AUTO_MC", "true")
	t.Setenv("MQTT_ENABLED", "false")
	t.Setenv("MQTT_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "aat", cfg.Engine.TaskType)
	assert.Equal(t, 150*time.Minute, cfg.Engine.AATMinTime)
	assert.Equal(t, 1.5, cfg.Engine.MC)
	assert.True(t, cfg.Engine.AutoMC)
	assert.False(t, cfg.MQTT.Enabled)
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("MC", "fast")
	t.Setenv("REDIS_DB", "x")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Engine.MC)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "ok"},
		{name: "positive polar b", env: map[string]string{"POLAR_B": "0.1"}, wantErr: true},
		{name: "bugs above one", env: map[string]string{"BUGS": "1.2"}, wantErr: true},
		{name: "geohash precision", env: map[string]string{"GEOHASH_PRECISION": "13"}, wantErr: true},
		{name: "risk gamma", env: map[string]string{"RISK_GAMMA": "2"}, wantErr: true},
		{name: "idle interval", env: map[string]string{"IDLE_INTERVAL": "0s"}, wantErr: true},
		{name: "max fix speed", env: map[string]string{"MAX_FIX_SPEED": "-5"}, wantErr: true},
		{name: "auth without endpoint", env: map[string]string{"AUTH_ENABLED": "true"}, wantErr: true},
		{name: "auth", env: map[string]string{"AUTH_ENABLED": "true", "AUTH_ENDPOINT": "http://auth.local/api/user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
