package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownVariants(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, msg ServerMessage)
	}{
		{
			name:  "chat content",
			frame: `{"type":"chat_content","content":"hello","session_id":"ws_1"}`,
			check: func(t *testing.T, msg ServerMessage) {
				m, ok := msg.(ChatContent)
				require.True(t, ok)
				assert.Equal(t, "hello", m.Content)
				assert.Equal(t, "ws_1", m.SessionID)
			},
		},
		{
			name:  "tool result keeps raw payload and args",
			frame: `{"type":"tool_result","tool_name":"deepfake_detector","call_id":"c1","result":{"score":0.4},"original_args":{"media_path":"file:abc"}}`,
			check: func(t *testing.T, msg ServerMessage) {
				m, ok := msg.(ToolResult)
				require.True(t, ok)
				assert.Equal(t, "deepfake_detector", m.ToolName)
				assert.Equal(t, "c1", m.CallID)
				assert.JSONEq(t, `{"score":0.4}`, string(m.Result))
				assert.JSONEq(t, `{"media_path":"file:abc"}`, string(m.OriginalArgs))
			},
		},
		{
			name:  "upload complete",
			frame: `{"type":"upload_complete","upload_id":"u1","file_id":"f1","file_info":{"name":"a.png","size":10,"type":"image/png"}}`,
			check: func(t *testing.T, msg ServerMessage) {
				m, ok := msg.(UploadComplete)
				require.True(t, ok)
				assert.Equal(t, "u1", m.UploadID)
				assert.Equal(t, "f1", m.FileID)
				assert.Equal(t, "a.png", m.FileInfo.Name)
			},
		},
		{
			name:  "error with upload id",
			frame: `{"type":"error","message":"Failed to save file","upload_id":"u2"}`,
			check: func(t *testing.T, msg ServerMessage) {
				m, ok := msg.(Error)
				require.True(t, ok)
				assert.Equal(t, "u2", m.UploadID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			tt.check(t, msg)
		})
	}
}

func TestDecodeUnknownTypeIsUnrecognized(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"totally_unknown","x":1}`))
	require.NoError(t, err)

	u, ok := msg.(Unrecognized)
	require.True(t, ok)
	assert.Equal(t, "totally_unknown", u.MessageType())
	assert.JSONEq(t, `{"type":"totally_unknown","x":1}`, string(u.Raw))
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"content":"no type"}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = Decode([]byte(`{"type":"upload_progress","progress":"half"}`))
	assert.Error(t, err)
}

func TestEncodeInjectsTypeAndValidates(t *testing.T) {
	data, err := Encode(NewChat("hi", "ws_c1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat","message":"hi","session_id":"ws_c1"}`, string(data))

	data, err = Encode(NewFileChunk("u1", 0, 3, "aGVsbG8=", FileInfo{Name: "a.bin", Size: 5}))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "file_chunk", decoded["type"])
	assert.Equal(t, "u1", decoded["upload_id"])
	assert.EqualValues(t, 0, decoded["chunk_index"])
	assert.EqualValues(t, 3, decoded["total_chunks"])

	_, err = Encode(NewChat("", ""))
	assert.Error(t, err)

	_, err = Encode(NewFileChunk("u1", 3, 3, "aGVsbG8=", FileInfo{Name: "a.bin"}))
	assert.Error(t, err, "chunk index must be below total")

	_, err = Encode(NewAnalyze("text", "carrier-pigeon", nil))
	assert.Error(t, err)

	_, err = Encode(Chat{Message: "missing type"})
	assert.Error(t, err)

	data, err = Encode(NewPing())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(data))
}
