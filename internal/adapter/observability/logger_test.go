package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/fairyhunter13/ai-calculator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	require.NotNil(t, SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"}))
	require.NotNil(t, SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc"}))
}

func TestNewLogger_ServiceAndEnvFields(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, config.Config{AppEnv: "prod", OTELServiceName: "ai-calculator"})
	lg.Debug("hidden")
	lg.Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "ai-calculator", entry["service"])
	assert.Equal(t, "prod", entry["env"])
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, LoggerFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(ctx))

	lg := newLogger(&bytes.Buffer{}, config.Config{})
	ctx = ContextWithLogger(ctx, lg)
	ctx = ContextWithRequestID(ctx, "01HX")
	assert.Same(t, lg, LoggerFromContext(ctx))
	assert.Equal(t, "01HX", RequestIDFromContext(ctx))

	// empty values leave the context untouched
	assert.Equal(t, ctx, ContextWithRequestID(ctx, ""))
	assert.Equal(t, ctx, ContextWithLogger(ctx, nil))
}
