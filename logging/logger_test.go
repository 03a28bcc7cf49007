package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatali-fataliyev/expense_tracker/internal/contextutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}

func TestInitWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init("debug", "production", dir))

	Logger.Info("hello")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"hello"`)
}

func TestWithTrace(t *testing.T) {
	ctx := contextutil.WithTraceID(context.Background(), "trace-123")
	entry := WithTrace(ctx)
	assert.Equal(t, "trace-123", entry.Data["trace_id"])

	entry = WithTrace(context.Background())
	assert.Equal(t, "unknown-trace-id", entry.Data["trace_id"])
}
