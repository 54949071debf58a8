package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected string
	}{
		{name: "regular address", email: "john.doe@example.com", expected: "jo***@example.com"},
		{name: "short local part", email: "ab@example.com", expected: "***@example.com"},
		{name: "no at sign", email: "not-an-address", expected: "***@***"},
		{name: "trailing at sign", email: "john@", expected: "***@***"},
		{name: "empty", email: "", expected: "***@***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RedactEmail(tt.email))
		})
	}
}

func TestIsAddressField(t *testing.T) {
	assert.True(t, IsAddressField("email"))
	assert.True(t, IsAddressField("Recipient"))
	assert.True(t, IsAddressField("to"))
	assert.False(t, IsAddressField("subject"))
	assert.False(t, IsAddressField("batch"))
}

func TestZapWrapper_RedactsAddressFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	log.Info("message sent", map[string]interface{}{
		"recipient": "jane.roe@example.org",
		"subject":   "Application for Engineer",
		"attempts":  2,
	})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "ja***@example.org", fields["recipient"])
		assert.Equal(t, "Application for Engineer", fields["subject"])
		assert.EqualValues(t, 2, fields["attempts"])
	}
}

func TestZapWrapper_WithFieldsAndError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).
		WithFields(map[string]interface{}{"runId": "run-1"}).
		WithError(errors.New("boom"))

	log.Warn("reconnecting", nil)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "run-1", fields["runId"])
		assert.Equal(t, "boom", fields["error"])
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	}
}

func TestNewStructured_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			assert.NotNil(t, NewStructured(level, "json"))
			assert.NotNil(t, NewStructured(level, "console"))
		})
	}
}

func TestNoOpAndTestLoggers(t *testing.T) {
	NewNoOpLogger().Error("ignored", map[string]interface{}{"email": "a@b.c"})
	NewTestLogger(t).Debug("visible in test output", nil)
}
