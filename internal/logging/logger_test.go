package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerIsSingletonPerComponent(t *testing.T) {
	a := NewLogger("ws")
	b := NewLogger("ws")
	c := NewLogger("db")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "ws", a.Data["component"])
}

func TestConfigureJSONAndLevel(t *testing.T) {
	os.Unsetenv("FOCUSFLOW_LOG_LEVEL")
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer Configure("info", "text")

	Configure("warn", "json")
	assert.Equal(t, logrus.WarnLevel, Level())

	log := NewLogger("test-json")
	log.Info("hidden")
	log.WithField("workspace", "w1").Warn("shown")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "w1", entry["workspace"])
	assert.Equal(t, "test-json", entry["component"])
}

func TestConfigureEnvOverride(t *testing.T) {
	t.Setenv("FOCUSFLOW_LOG_LEVEL", "debug")
	defer Configure("info", "text")

	Configure("error", "text")
	assert.Equal(t, logrus.DebugLevel, Level())
}

func TestConfigureUnknownLevel(t *testing.T) {
	os.Unsetenv("FOCUSFLOW_LOG_LEVEL")
	defer Configure("info", "text")

	Configure("loud", "text")
	assert.Equal(t, logrus.InfoLevel, Level())
}
