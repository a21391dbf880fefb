package console_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MOACChain/knode/console"
	"github.com/MOACChain/knode/engine"
	"github.com/MOACChain/knode/id"
)

func randomID() id.Id160 {
	return id.Random()
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New("127.0.0.1:0", randomID(), nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestEvaluateSelfReturnsHexID(t *testing.T) {
	eng := newTestEngine(t)
	c := console.New(eng, nil)
	defer c.Close()

	out, err := c.Evaluate("self()")
	require.NoError(t, err)
	assert.Equal(t, eng.Self().Hex(), out)
}

func TestEvaluatePingAgainstUnreachablePeerReturnsFalse(t *testing.T) {
	eng := newTestEngine(t)
	c := console.New(eng, nil)
	defer c.Close()

	out, err := c.Evaluate(`ping("127.0.0.1:1")`)
	require.NoError(t, err)
	assert.Equal(t, "false", out)
}

func TestEvaluatePingBetweenTwoEngines(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	c := console.New(a, nil)
	defer c.Close()

	out, err := c.Evaluate(`ping("` + b.LocalAddr().String() + `")`)
	require.NoError(t, err)
	assert.Equal(t, "true", out)
}

func TestEvaluateFindValueForUnknownKeyReturnsNull(t *testing.T) {
	eng := newTestEngine(t)
	c := console.New(eng, nil)
	defer c.Close()

	out, err := c.Evaluate(`findvalue("` + randomID().Hex() + `")`)
	require.NoError(t, err)
	assert.Equal(t, "null", out)
}

func TestEvaluateUnknownFunctionReturnsError(t *testing.T) {
	eng := newTestEngine(t)
	c := console.New(eng, nil)
	defer c.Close()

	_, err := c.Evaluate("doesNotExist()")
	assert.Error(t, err)
}
