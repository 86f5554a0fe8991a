package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"pixel_update","payload":{"x":1,"y":2,"color":"#ABCDEF"}}`))
	require.NoError(t, err)
	assert.Equal(t, InPixelUpdate, env.Type)

	for _, bad := range []string{`not json`, `{"payload":{}}`, `[]`} {
		_, err := ParseEnvelope([]byte(bad))
		assert.True(t, errors.Is(err, ErrMalformed), "input %q", bad)
	}
}

func TestDecodePixelUpdate(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid", payload: `{"x":0,"y":0,"color":"#00ff00"}`},
		{name: "missing payload", payload: ``, wantErr: true},
		{name: "null payload", payload: `null`, wantErr: true},
		{name: "missing x", payload: `{"y":0,"color":"#00ff00"}`, wantErr: true},
		{name: "negative y", payload: `{"x":0,"y":-1,"color":"#00ff00"}`, wantErr: true},
		{name: "short color", payload: `{"x":0,"y":0,"color":"#0f0"}`, wantErr: true},
		{name: "named color", payload: `{"x":0,"y":0,"color":"red"}`, wantErr: true},
		{name: "alpha color", payload: `{"x":0,"y":0,"color":"#00ff00ff"}`, wantErr: true},
		{name: "string coordinate", payload: `{"x":"1","y":0,"color":"#00ff00"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode[PixelUpdate](json.RawMessage(tt.payload))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, *got.X)
			assert.Equal(t, "#00ff00", got.Color)
		})
	}
}

func TestDecodeGridSizeLeavesRangeToService(t *testing.T) {
	for _, raw := range []string{`{"width":50,"height":50}`, `{"width":0,"height":50}`, `{"width":50,"height":2001}`} {
		_, err := Decode[GridSize](json.RawMessage(raw))
		assert.NoError(t, err, raw)
	}

	_, err := Decode[GridSize](json.RawMessage(`{"width":"wide"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeBool(t *testing.T) {
	b, err := DecodeBool(json.RawMessage(`true`))
	require.NoError(t, err)
	assert.True(t, b)

	for _, bad := range []string{``, `null`, `"true"`, `{}`} {
		_, err := DecodeBool(json.RawMessage(bad))
		assert.Error(t, err, "input %q", bad)
	}
}

func TestWaitSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, int64(30), *WaitSeconds(30000))
	assert.Equal(t, int64(30), *WaitSeconds(29001))
	assert.Equal(t, int64(1), *WaitSeconds(1))
	assert.Equal(t, int64(0), *WaitSeconds(0))
}
