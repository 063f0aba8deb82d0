package main

import (
	"context"
	"testing"

	"github.com/aixgo-dev/synode"
	"github.com/aixgo-dev/synode/internal/operator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const echoGraph = `
name: echo
operators:
  - alias: calc
    operator_type: basic
    path: calc
synode:
  - agent: main
    operator: calc::echo
    store_key: last
  - agent: other
    operator: calc::echo
`

func echoMethods(map[string]any) (operator.Methods, error) {
	return operator.Methods{
		"echo": func(_ context.Context, args operator.Args) (any, error) { return args.Input, nil },
	}, nil
}

func TestParseValue(t *testing.T) {
	assert.Nil(t, parseValue(""))
	assert.Equal(t, float64(3), parseValue("3"))
	assert.Equal(t, map[string]any{"a": true}, parseValue(`{"a": true}`))
	assert.Equal(t, "hello there", parseValue("hello there"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SYNODE_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("SYNODE_TEST_INT", 1))

	t.Setenv("SYNODE_TEST_INT", "many")
	assert.Equal(t, 1, getEnvInt("SYNODE_TEST_INT", 1))
}

func TestREPLCommands(t *testing.T) {
	ctx := context.Background()
	def, err := synode.NewLoader(nil).Parse([]byte(echoGraph))
	require.NoError(t, err)
	engine, err := synode.New(def, synode.WithBasic("calc", echoMethods))
	require.NoError(t, err)

	quit, trigger := replCommand(ctx, engine, ":trigger other", "main")
	assert.False(t, quit)
	assert.Equal(t, "other", trigger)

	_, trigger = replCommand(ctx, engine, ":trigger ghost", trigger)
	assert.Equal(t, "other", trigger, "unknown agents leave the trigger alone")

	quit, _ = replCommand(ctx, engine, ":quit", trigger)
	assert.True(t, quit)
}
