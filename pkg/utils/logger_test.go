package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  string
	}{
		{name: "debug", level: "debug", want: "debug"},
		{name: "upper case", level: "WARN", want: "warning"},
		{name: "unknown falls back to info", level: "loud", want: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLogger(tt.level, "text")
			assert.Equal(t, tt.want, l.Entry().Logger.GetLevel().String())
		})
	}
}

func TestLogger_JSONFields(t *testing.T) {
	l := NewLogger("info", "json")
	var buf bytes.Buffer
	l.Entry().Logger.SetOutput(&buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	l.WithFields(map[string]interface{}{"task_id": "t1"}).
		WithField("index", 2).
		WithContext(ctx).
		Info("task declared")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "task declared", rec["msg"])
	assert.Equal(t, "t1", rec["task_id"])
	assert.Equal(t, float64(2), rec["index"])
	assert.Equal(t, "req-1", rec["request_id"])
}

func TestLogger_WithFieldDoesNotMutateParent(t *testing.T) {
	parent := NewLogger("info", "json")
	child := parent.WithField("a", 1)

	assert.Len(t, parent.Entry().Data, 0)
	assert.Len(t, child.Entry().Data, 1)
}

func TestSetDefaultLogger(t *testing.T) {
	orig := DefaultLogger()
	defer SetDefaultLogger(orig)

	l := NewLogger("error", "text")
	SetDefaultLogger(l)
	assert.Same(t, l, DefaultLogger())

	SetDefaultLogger(nil)
	assert.Same(t, l, DefaultLogger())
}
