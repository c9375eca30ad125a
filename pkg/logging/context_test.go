package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	base := zerolog.New(buf)

	ctx := WithContext(context.Background(), base)
	ctx = WithRequestID(ctx, "req-123")

	logger := FromContext(ctx)
	logger.Info().Msg("handled")

	if !strings.Contains(buf.String(), `"request_id":"req-123"`) {
		t.Errorf("expected request_id field, got %s", buf.String())
	}
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := FromContext(context.Background())
	logger.Info().Msg("global fallback")

	if !strings.Contains(buf.String(), "global fallback") {
		t.Errorf("expected message on the global logger, got %s", buf.String())
	}
}
