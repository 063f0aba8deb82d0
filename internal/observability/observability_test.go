package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/aixgo-dev/synode/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpan_NoopTracer(t *testing.T) {
	require.NoError(t, Init(Config{ExporterType: "none"}, logging.NewNop()))

	ctx, span := StartSpan(context.Background(), "synode.agent", map[string]any{
		"agent": "main",
		"depth": 2,
		"ok":    true,
		"other": []string{"a"},
	})
	require.NotNil(t, ctx)
	assert.Equal(t, "synode.agent", span.Name())

	assert.NotPanics(t, func() {
		span.SetAttribute("result", 1.5)
		span.End(errors.New("boom"))
	})
}

func TestInit_UnknownExporter(t *testing.T) {
	err := Init(Config{ExporterType: "carrier-pigeon"}, logging.NewNop())
	assert.Error(t, err)
}

func TestInit_Stdout(t *testing.T) {
	require.NoError(t, Init(Config{ExporterType: "stdout"}, logging.NewNop()))
	t.Cleanup(func() {
		_ = Shutdown(context.Background())
		setTracer(nil, nil)
	})

	_, span := StartSpan(context.Background(), "synode.launch", nil)
	span.End(nil)
}

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, parseHeaders(""))
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y"}, parseHeaders("a=1, b=x=y,broken"))
}

func TestConvertToAttribute(t *testing.T) {
	assert.Equal(t, "42", convertToAttribute("k", 42).Value.Emit())
	assert.Equal(t, "[a]", convertToAttribute("k", []string{"a"}).Value.Emit())
}

func TestShutdown_NoProvider(t *testing.T) {
	setTracer(nil, nil)
	assert.NoError(t, Shutdown(context.Background()))
}
