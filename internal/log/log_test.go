package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mediafetch/fetchd/internal/log"

	"github.com/stretchr/testify/require"
)

func TestContextHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(log.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := log.ContextAttrs(context.Background(), slog.String("job_id", "abc"))
	ctx = log.ContextAttrs(ctx, slog.Int("attempt", 2))
	logger.InfoContext(ctx, "retrying")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "retrying", record["msg"])
	require.Equal(t, "abc", record["job_id"])
	require.Equal(t, float64(2), record["attempt"])
}

func TestContextAttrsDoesNotLeakSideways(t *testing.T) {
	t.Parallel()
	base := log.ContextAttrs(context.Background(), slog.String("shared", "yes"))
	a := log.ContextAttrs(base, slog.String("branch", "a"))
	_ = log.ContextAttrs(base, slog.String("branch", "b"))

	var buf bytes.Buffer
	logger := slog.New(log.NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	logger.InfoContext(a, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "a", record["branch"])
}
