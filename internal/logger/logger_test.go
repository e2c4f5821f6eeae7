package logger

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNamedComponentWritesTag(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("info")
	defer SetOutput(os.Stdout)

	Named("entry").Infof("admitted %s", "BTC_USDT")
	Named("entry").Debugf("hidden")

	out := buf.String()
	assert.Contains(t, out, "component=entry")
	assert.Contains(t, out, "admitted BTC_USDT")
	assert.NotContains(t, out, "hidden")
}
