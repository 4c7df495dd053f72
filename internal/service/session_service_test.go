package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aicca-realtime/internal/connection"
	"aicca-realtime/internal/eventloop"
	"aicca-realtime/internal/session"
	"aicca-realtime/internal/statemachine"
	"aicca-realtime/internal/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	inbox   chan []byte
	written chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbox:   make(chan []byte, 64),
		written: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-f.inbox:
		return data, nil
	case <-f.closed:
		return nil, connection.ErrTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	select {
	case <-f.closed:
		return connection.ErrTransportClosed
	case f.written <- data:
		return nil
	}
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type harness struct {
	svc   ISessionService
	dials chan *fakeTransport
}

func newHarness(t *testing.T, sessionID string) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	loop := eventloop.New()
	go loop.Run(ctx)

	h := &harness{dials: make(chan *fakeTransport, 8)}
	dialer := connection.DialerFunc(func(ctx context.Context, url string) (connection.Transport, error) {
		tr := newFakeTransport()
		h.dials <- tr
		return tr, nil
	})

	store := session.NewStore(nil)
	manager := connection.NewManager(loop, dialer, nil, connection.Config{WSBaseURL: "ws://backend", ReconnectDelay: time.Millisecond}, nil)
	engine := transfer.NewEngine(loop, manager, transfer.Config{ChunkSize: 4, ChunkDelay: -1, Timeout: 2 * time.Second}, nil)
	machine := statemachine.New(store, engine, nil)
	manager.OnState(store.SetConnectionState)
	manager.OnMessage(machine.Handle)

	h.svc = NewSessionService(loop, store, machine, manager, engine, sessionID, nil)
	return h
}

func (h *harness) connect(t *testing.T, clientID string) *fakeTransport {
	t.Helper()
	h.svc.Start(clientID)
	tr := h.nextDial(t)
	require.Eventually(t, func() bool {
		state, err := h.svc.Snapshot(context.Background())
		return err == nil && state.Connection == session.StateConnected
	}, 2*time.Second, 5*time.Millisecond)
	return tr
}

func (h *harness) nextDial(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case tr := <-h.dials:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("no dial")
		return nil
	}
}

func nextFrame(t *testing.T, tr *fakeTransport) map[string]interface{} {
	t.Helper()
	select {
	case data := <-tr.written:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written")
		return nil
	}
}

func TestSendChatRecordsUserMessageAndSends(t *testing.T) {
	h := newHarness(t, "")
	tr := h.connect(t, "client_1")
	ctx := context.Background()

	require.NoError(t, h.svc.SendChat(ctx, "  is this photo real?  "))

	frame := nextFrame(t, tr)
	assert.Equal(t, "chat", frame["type"])
	assert.Equal(t, "is this photo real?", frame["message"])
	assert.Equal(t, "ws_client_1", frame["session_id"])

	state, err := h.svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, session.KindUser, state.Messages[0].Kind)
	assert.Equal(t, "is this photo real?", state.Messages[0].Content)
}

func TestSendChatUsesConfiguredSessionID(t *testing.T) {
	h := newHarness(t, "custom")
	tr := h.connect(t, "client_1")

	require.NoError(t, h.svc.SendChat(context.Background(), "hi"))
	assert.Equal(t, "custom", nextFrame(t, tr)["session_id"])
}

func TestSendChatRejectsEmptyText(t *testing.T) {
	h := newHarness(t, "")
	err := h.svc.SendChat(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrEmptyMessage))
}

func TestAnalyzeAndToolExecuteFrames(t *testing.T) {
	h := newHarness(t, "")
	tr := h.connect(t, "client_1")
	ctx := context.Background()

	require.NoError(t, h.svc.Analyze(ctx, "claim", "", nil))
	frame := nextFrame(t, tr)
	assert.Equal(t, "analyze", frame["type"])
	assert.Equal(t, "text", frame["source_type"])

	require.NoError(t, h.svc.ExecuteTool(ctx, "c2pa_verify", nil))
	frame = nextFrame(t, tr)
	assert.Equal(t, "tool_execute", frame["type"])
	assert.Equal(t, map[string]interface{}{}, frame["args"])

	assert.Error(t, h.svc.ExecuteTool(ctx, "", nil))
}

func TestResultsAreNormalizedPerFile(t *testing.T) {
	h := newHarness(t, "")
	tr := h.connect(t, "client_1")
	ctx := context.Background()

	tr.inbox <- []byte(`{"type":"upload_complete","upload_id":"u1","file_id":"f-1","file_info":{"name":"photo.jpg","size":10}}`)
	tr.inbox <- []byte(`{"type":"tool_call","tool_name":"deepfake_detector","parameters":{"image_path":"/tmp/photo.jpg"}}`)
	tr.inbox <- []byte(`{"type":"tool_result","tool_name":"deepfake_detector","result":{"sightengine_analysis":{"deepfake_score":0.82}}}`)

	var results []FileResults
	require.Eventually(t, func() bool {
		var err error
		results, err = h.svc.Results(ctx)
		return err == nil && len(results) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "f-1", results[0].FileKey)
	assert.Equal(t, "photo.jpg", results[0].FileName)
	require.Len(t, results[0].Results, 1)
	assert.Equal(t, "deepfake_detector", results[0].Results[0].ToolType)
	assert.Equal(t, 82.0, results[0].Results[0].Unified.RiskScore)
}

func TestUploadResolvesWithFileID(t *testing.T) {
	h := newHarness(t, "")
	tr := h.connect(t, "client_1")
	ctx := context.Background()

	type outcome struct {
		id  string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		id, err := h.svc.Upload(ctx, transfer.BytesFile("note.txt", "text/plain", []byte("hello")))
		done <- outcome{id, err}
	}()

	first := nextFrame(t, tr)
	second := nextFrame(t, tr)
	assert.Equal(t, "file_chunk", first["type"])
	assert.Equal(t, 2.0, first["total_chunks"])
	assert.Equal(t, 1.0, second["chunk_index"])

	tr.inbox <- []byte(fmt.Sprintf(`{"type":"upload_complete","upload_id":%q,"file_id":"f-9","file_info":{"name":"note.txt","size":5}}`, first["upload_id"]))

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, "f-9", res.id)
	case <-time.After(3 * time.Second):
		t.Fatal("upload did not resolve")
	}

	state, err := h.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "f-9", state.FileIDs["note.txt"])
}

func TestResetClearsConversationAndReconnects(t *testing.T) {
	h := newHarness(t, "")
	h.connect(t, "client_1")
	ctx := context.Background()

	require.NoError(t, h.svc.SendChat(ctx, "hello"))
	require.NoError(t, h.svc.SelectFiles(ctx, []string{"a.png"}))

	require.NoError(t, h.svc.Reset(ctx))
	h.nextDial(t)

	state, err := h.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Messages)
	assert.Empty(t, state.SelectedFiles)

	id, err := h.svc.SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ws_client_1", id)
}
