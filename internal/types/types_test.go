package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOKEnvelope(t *testing.T) {
	env := OK(map[string]int{"count": 3})
	assert.True(t, env.Success)
	assert.Empty(t, env.Error)
	assert.Empty(t, env.ErrorCode)
	assert.False(t, env.Timestamp.IsZero())
}

func TestFailEnvelope(t *testing.T) {
	env := Fail("sop not found: sop-1", "NOT_FOUND")
	assert.False(t, env.Success)
	assert.Equal(t, "sop not found: sop-1", env.Error)
	assert.Equal(t, "NOT_FOUND", env.ErrorCode)
	assert.Nil(t, env.Data)
}

func TestFailOmitsDataInJSON(t *testing.T) {
	raw, err := json.Marshal(Fail("bad input", "VALIDATION_ERROR"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "data")
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "VALIDATION_ERROR", decoded["errorCode"])
}
