package kvbridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandConvertErrorPassthrough(t *testing.T) {
	cmd := getCommand("k")
	sentinel := errors.New("engine said no")

	_, err := cmd.Convert(sentinel)
	assert.ErrorIs(t, err, sentinel)
}

func TestCommandConvertNilNullable(t *testing.T) {
	cmd := getCommand("missing")

	v, err := cmd.Convert(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCommandConvertNilNotNullable(t *testing.T) {
	cmd := incrCommand("counter")

	_, err := cmd.Convert(nil)
	var violation *ContractViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "Int", violation.Expected)
	assert.Contains(t, violation.Error(), "nil")
}

func TestCommandConvertIdentityWithoutConverter(t *testing.T) {
	cmd := NewRawCommand(CustomCommand, "OBJECT", "ENCODING", "k")

	v, err := cmd.Convert([]any{"embstr"})
	require.NoError(t, err)
	assert.Equal(t, []any{"embstr"}, v)
}

func TestCommandConvertWrongShape(t *testing.T) {
	cmd := incrCommand("counter")

	_, err := cmd.Convert("not a number")
	var violation *ContractViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "Int", violation.Expected)
	assert.Contains(t, violation.Error(), "string")
}

func TestCommandConvertOK(t *testing.T) {
	cmd := setCommand("k", "v")

	v, err := cmd.Convert("OK")
	require.NoError(t, err)
	assert.Equal(t, "OK", v)

	_, err = cmd.Convert("NOTOK")
	assert.Error(t, err)
}

func TestCommandConvertStringOrNilArray(t *testing.T) {
	cmd := mgetCommand([]string{"a", "b", "c"})

	v, err := cmd.Convert([]any{"one", nil, "three"})
	require.NoError(t, err)

	results, ok := v.([]Result[string])
	require.True(t, ok)
	require.Len(t, results, 3)
	assert.Equal(t, "one", results[0].Value())
	assert.True(t, results[1].IsNil())
	assert.Equal(t, "three", results[2].Value())
}

func TestCommandConvertStringSet(t *testing.T) {
	cmd := smembersCommand("tags")

	v, err := cmd.Convert(map[string]struct{}{"a": {}, "b": {}})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}}, v)

	_, err = cmd.Convert([]any{"a"})
	assert.Error(t, err)
}

func TestCommandForMultiNode(t *testing.T) {
	// One command, fanned out: each node's value goes through the
	// single-node conversion and keeps its node key.
	cmd := incrCommand("counter").ForMultiNode()

	v, err := cmd.Convert(map[string]any{
		"10.0.0.1:6379": int64(3),
		"10.0.0.2:6379": int64(5),
	})
	require.NoError(t, err)

	byNode, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(3), byNode["10.0.0.1:6379"])
	assert.Equal(t, int64(5), byNode["10.0.0.2:6379"])
}

func TestCommandForMultiNodePropagatesEntryViolation(t *testing.T) {
	cmd := incrCommand("counter").ForMultiNode()

	_, err := cmd.Convert(map[string]any{"10.0.0.1:6379": "oops"})
	var violation *ContractViolationError
	assert.ErrorAs(t, err, &violation)
}

func TestCommandForMultiNodeRejectsScalar(t *testing.T) {
	cmd := infoCommand().ForMultiNode()

	_, err := cmd.Convert("single node text")
	var violation *ContractViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "Map", violation.Expected)
}

func TestCommandForClusterValueSingle(t *testing.T) {
	cmd := pingCommand("").ForClusterValue(false)

	v, err := cmd.Convert("PONG")
	require.NoError(t, err)

	cv, ok := v.(ClusterValue[any])
	require.True(t, ok)
	assert.True(t, cv.IsSingleValue())
	assert.Equal(t, "PONG", cv.SingleValue())
}

func TestCommandForClusterValueMulti(t *testing.T) {
	cmd := infoCommand().ForClusterValue(true)

	v, err := cmd.Convert(map[string]any{"n1": "text1", "n2": "text2"})
	require.NoError(t, err)

	cv, ok := v.(ClusterValue[any])
	require.True(t, ok)
	assert.True(t, cv.IsMultiValue())
	assert.Equal(t, "text1", cv.MultiValue()["n1"])
}

func TestResultNilHandling(t *testing.T) {
	r := NilResult[string]()
	assert.True(t, r.IsNil())
	assert.Empty(t, r.Value())

	r = NewResult("x")
	assert.False(t, r.IsNil())
	assert.Equal(t, "x", r.Value())
}
