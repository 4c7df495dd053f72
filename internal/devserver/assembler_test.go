package devserver

import (
	"encoding/base64"
	"testing"
	"time"

	"aicca-realtime/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(uploadID string, index, total int, data string) protocol.FileChunk {
	return protocol.NewFileChunk(uploadID, index, total, base64.StdEncoding.EncodeToString([]byte(data)),
		protocol.FileInfo{Name: "a.txt", Size: 9, Type: "text/plain"})
}

func TestAssemblerMergesChunksInIndexOrder(t *testing.T) {
	a := NewAssembler(time.Minute)

	status, err := a.Add("c1", chunk("u1", 2, 3, "ghi"))
	require.NoError(t, err)
	assert.False(t, status.Complete())
	assert.Equal(t, 1, status.Received)
	assert.InDelta(t, 33.33, status.Progress(), 0.01)

	_, err = a.Add("c1", chunk("u1", 0, 3, "abc"))
	require.NoError(t, err)
	assert.Equal(t, 1, a.Pending())

	status, err = a.Add("c1", chunk("u1", 1, 3, "def"))
	require.NoError(t, err)
	require.True(t, status.Complete())
	assert.Equal(t, "abcdefghi", string(status.Data))
	assert.Equal(t, "a.txt", status.Info.Name)
	assert.Equal(t, 100.0, status.Progress())
	assert.Equal(t, 0, a.Pending())
}

func TestAssemblerRejectsInconsistentUploads(t *testing.T) {
	tests := []struct {
		name    string
		first   protocol.FileChunk
		second  protocol.FileChunk
		client2 string
		wantErr error
	}{
		{"total changes", chunk("u1", 0, 3, "a"), chunk("u1", 1, 4, "b"), "c1", ErrChunkCountMismatch},
		{"index out of range", chunk("u1", 0, 3, "a"), chunk("u1", 3, 3, "b"), "c1", ErrChunkOutOfRange},
		{"other client", chunk("u1", 0, 3, "a"), chunk("u1", 1, 3, "b"), "c2", ErrForeignUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(time.Minute)
			_, err := a.Add("c1", tt.first)
			require.NoError(t, err)

			_, err = a.Add(tt.client2, tt.second)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAssemblerDropsUploadOnMismatch(t *testing.T) {
	a := NewAssembler(time.Minute)
	_, err := a.Add("c1", chunk("u1", 0, 2, "a"))
	require.NoError(t, err)

	_, err = a.Add("c1", chunk("u1", 1, 5, "b"))
	require.Error(t, err)
	assert.Equal(t, 0, a.Pending())
}

func TestAssemblerReportsUndecodableChunk(t *testing.T) {
	a := NewAssembler(time.Minute)
	bad := chunk("u1", 0, 1, "")
	bad.Data = "not base64!"

	_, err := a.Add("c1", bad)
	assert.Error(t, err)
}
