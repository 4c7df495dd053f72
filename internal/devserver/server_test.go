package devserver

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"aicca-realtime/internal/config"
	"aicca-realtime/internal/connection"
	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/restclient"
	"aicca-realtime/internal/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	addr string
	hub  *Hub
}

func startServer(t *testing.T) testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	hub := NewHub(nil)
	go hub.Run(ctx)

	agent := NewAgent(NewAssembler(time.Minute), storage, NewMemoryRegistry(), nil)
	srv := NewServer(config.DevServerConfig{CorsAllowedOrigins: "http://localhost:3000"}, NewHandler(ctx, hub, agent, storage, nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)

	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
	})
	return testServer{addr: ln.Addr().String(), hub: hub}
}

func readFrame(t *testing.T, tr connection.Transport) map[string]interface{} {
	t.Helper()
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := tr.ReadMessage()
		ch <- result{data, err}
	}()

	select {
	case res := <-ch:
		require.NoError(t, res.err)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(res.data, &msg))
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestSessionOverWebsocket(t *testing.T) {
	ts := startServer(t)
	dialer := connection.NewWebsocketDialer(logger.NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := dialer.Dial(ctx, "ws://"+ts.addr+"/ws/enhanced/client_1")
	require.NoError(t, err)
	defer tr.Close()

	greeting := readFrame(t, tr)
	assert.Equal(t, "connection", greeting["type"])
	assert.Equal(t, "client_1", greeting["client_id"])

	require.NoError(t, tr.WriteMessage([]byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", readFrame(t, tr)["type"])

	require.NoError(t, tr.WriteMessage([]byte(`{"type":"chat","message":"hi"}`)))
	assert.Equal(t, "chat_start", readFrame(t, tr)["type"])
	content := readFrame(t, tr)
	assert.Equal(t, "chat_content", content["type"])
	assert.Equal(t, "ws_client_1", content["session_id"])

	require.Eventually(t, func() bool {
		conns := ts.hub.Connections()
		return len(conns) == 1 && conns[0].ClientID == "client_1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRestEndpoints(t *testing.T) {
	ts := startServer(t)
	client := restclient.NewClient("http://"+ts.addr, 5*time.Second, nil)
	ctx := context.Background()

	info, err := client.Info(ctx)
	require.NoError(t, err)
	assert.Contains(t, info.Capabilities, "deepfake_detection")
	assert.Equal(t, "/api/upload", info.APIEndpoints["upload"])

	tools, err := client.Tools(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, tools.Total)

	res, err := client.Upload(ctx, transfer.BytesFile("hello.txt", "text/plain", []byte("hello")), "evidence")
	require.NoError(t, err)
	assert.NotEmpty(t, res.FileID)
	assert.Equal(t, "hello.txt", res.Filename)
	assert.Equal(t, int64(5), res.Size)
	assert.Equal(t, "evidence", res.Purpose)
	assert.Equal(t, "uploaded", res.Status)
}
