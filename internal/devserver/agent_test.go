package devserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReplier struct {
	id      string
	replies []map[string]interface{}
}

func (r *recordingReplier) ClientID() string { return r.id }

func (r *recordingReplier) Reply(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	r.replies = append(r.replies, decoded)
	return nil
}

func (r *recordingReplier) types() []string {
	out := make([]string, 0, len(r.replies))
	for _, m := range r.replies {
		out = append(out, m["type"].(string))
	}
	return out
}

func (r *recordingReplier) reset() {
	r.replies = nil
}

func newTestAgent(t *testing.T) (*Agent, *FileStorage) {
	t.Helper()
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	agent := NewAgent(NewAssembler(time.Minute), storage, NewMemoryRegistry(), nil)
	agent.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return agent, storage
}

func dispatch(a *Agent, r *recordingReplier, frame string) {
	a.Dispatch(context.Background(), r, []byte(frame))
}

func TestAgentGreets(t *testing.T) {
	a, _ := newTestAgent(t)
	r := &recordingReplier{id: "c1"}

	a.Greet(r)

	require.Len(t, r.replies, 1)
	assert.Equal(t, "connection", r.replies[0]["type"])
	assert.Equal(t, "connected", r.replies[0]["status"])
	assert.Equal(t, "c1", r.replies[0]["client_id"])
	assert.Equal(t, "2026-01-01T00:00:00Z", r.replies[0]["timestamp"])
}

func TestAgentStreamsEchoReply(t *testing.T) {
	a, _ := newTestAgent(t)
	r := &recordingReplier{id: "c1"}

	dispatch(a, r, `{"type":"chat","message":"hello there agent"}`)

	types := r.types()
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, "chat_start", types[0])
	assert.Equal(t, "chat_complete", types[len(types)-1])

	var b strings.Builder
	for _, m := range r.replies[1 : len(r.replies)-1] {
		assert.Equal(t, "chat_content", m["type"])
		assert.Equal(t, "ws_c1", m["session_id"])
		b.WriteString(m["content"].(string))
	}
	assert.Equal(t, "You said: hello there agent", b.String())
}

func TestAgentKeepsExplicitSessionID(t *testing.T) {
	a, _ := newTestAgent(t)
	r := &recordingReplier{id: "c1"}

	dispatch(a, r, `{"type":"chat","message":"hi","session_id":"s-42"}`)

	for _, m := range r.replies {
		assert.Equal(t, "s-42", m["session_id"])
	}
}

func TestAgentUploadThenListFiles(t *testing.T) {
	a, storage := newTestAgent(t)
	r := &recordingReplier{id: "c1"}

	dispatch(a, r, `{"type":"chat","message":"/files"}`)
	require.Equal(t, []string{"chat_content", "chat_complete"}, r.types())
	assert.Equal(t, "No files uploaded yet. Please upload files first.", r.replies[0]["content"])
	r.reset()

	parts := []string{"hello ", "world"}
	for i, p := range parts {
		frame, _ := json.Marshal(map[string]interface{}{
			"type":         "file_chunk",
			"upload_id":    "up-1",
			"chunk_index":  i,
			"total_chunks": len(parts),
			"data":         base64.StdEncoding.EncodeToString([]byte(p)),
			"file_info":    map[string]interface{}{"name": "note.txt", "size": 11, "type": "text/plain"},
		})
		a.Dispatch(context.Background(), r, frame)
	}

	require.Equal(t, []string{"upload_progress", "upload_progress", "upload_complete"}, r.types())
	assert.Equal(t, 50.0, r.replies[0]["progress"])
	assert.Equal(t, 100.0, r.replies[1]["progress"])

	done := r.replies[2]
	assert.Equal(t, "up-1", done["upload_id"])
	fileID := done["file_id"].(string)
	require.NotEmpty(t, fileID)
	assert.Equal(t, "note.txt", done["file_info"].(map[string]interface{})["name"])

	data, err := os.ReadFile(storage.Path(fileID))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	r.reset()

	dispatch(a, r, `{"type":"chat","message":" FILES "}`)
	require.Len(t, r.replies, 2)
	listing := r.replies[0]["content"].(string)
	assert.Contains(t, listing, "[1] note.txt (text/plain) - file:"+fileID)
	r.reset()

	dispatch(a, r, `{"type":"chat","message":"check it"}`)
	var b strings.Builder
	for _, m := range r.replies {
		if m["type"] == "chat_content" {
			b.WriteString(m["content"].(string))
		}
	}
	assert.Contains(t, b.String(), "note.txt (file:"+fileID+")")
}

func TestAgentUploadErrorCarriesUploadID(t *testing.T) {
	a, _ := newTestAgent(t)
	r := &recordingReplier{id: "c1"}

	dispatch(a, r, `{"type":"file_chunk","upload_id":"up-9","chunk_index":0,"total_chunks":2,"data":"YQ==","file_info":{"name":"x"}}`)
	dispatch(a, r, `{"type":"file_chunk","upload_id":"up-9","chunk_index":1,"total_chunks":3,"data":"Yg==","file_info":{"name":"x"}}`)

	require.Equal(t, []string{"upload_progress", "error"}, r.types())
	assert.Equal(t, "up-9", r.replies[1]["upload_id"])
	assert.Contains(t, r.replies[1]["message"], "File upload error")
}

func TestAgentReplies(t *testing.T) {
	tests := []struct {
		name        string
		frame       string
		wantType    string
		wantMessage string
	}{
		{"ping", `{"type":"ping"}`, "pong", ""},
		{"unknown type", `{"type":"bogus"}`, "error", "Unknown message type: bogus"},
		{"missing tool", `{"type":"tool_execute","tool_name":"deepfake","args":{}}`, "error", "Tool not found: deepfake"},
		{"bad json", `{"type":`, "error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAgent(t)
			r := &recordingReplier{id: "c1"}

			dispatch(a, r, tt.frame)

			require.Len(t, r.replies, 1)
			assert.Equal(t, tt.wantType, r.replies[0]["type"])
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, r.replies[0]["message"])
			}
		})
	}
}

func TestAgentToolNotFoundHasExecutionID(t *testing.T) {
	a, _ := newTestAgent(t)
	r := &recordingReplier{id: "c1"}

	dispatch(a, r, `{"type":"tool_execute","tool_name":"x"}`)

	require.Len(t, r.replies, 1)
	assert.NotEmpty(t, r.replies[0]["execution_id"])
	assert.NotContains(t, r.replies[0], "tool_name")
}

func TestAgentAnalyzeLifecycle(t *testing.T) {
	a, _ := newTestAgent(t)
	r := &recordingReplier{id: "c1"}

	dispatch(a, r, `{"type":"analyze","content":"some claim","source_type":"text"}`)

	require.Equal(t, []string{"analysis_start", "analysis_progress", "analysis_complete"}, r.types())
	requestID := r.replies[0]["request_id"]
	require.NotEmpty(t, requestID)
	assert.Equal(t, requestID, r.replies[1]["request_id"])
	assert.Equal(t, requestID, r.replies[2]["request_id"])
	assert.Equal(t, map[string]interface{}{}, r.replies[2]["results"])
}

func TestStreamPiecesConcatenate(t *testing.T) {
	tests := []string{"", "one", "one two", " leading", "a  b "}
	for _, text := range tests {
		assert.Equal(t, text, strings.Join(streamPieces(text), ""), "text %q", text)
	}
}
