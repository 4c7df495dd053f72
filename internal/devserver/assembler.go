package devserver

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"aicca-realtime/internal/protocol"

	"github.com/patrickmn/go-cache"
)

var (
	ErrChunkCountMismatch = errors.New("total_chunks changed during upload")
	ErrChunkOutOfRange    = errors.New("chunk index out of range")
	ErrForeignUpload      = errors.New("upload belongs to another client")
)

type pendingUpload struct {
	clientID string
	total    int
	info     protocol.FileInfo
	chunks   map[int]string
}

// ChunkStatus reports where an upload stands after one chunk was stored.
// Data is set once every chunk arrived.
type ChunkStatus struct {
	Received int
	Total    int
	Info     protocol.FileInfo
	Data     []byte
}

func (s ChunkStatus) Complete() bool {
	return s.Data != nil
}

func (s ChunkStatus) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Received) / float64(s.Total) * 100
}

// Assembler buffers file_chunk payloads per upload id. Uploads that stop
// receiving chunks are evicted after ttl.
type Assembler struct {
	mu      sync.Mutex
	pending *cache.Cache
}

func NewAssembler(ttl time.Duration) *Assembler {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Assembler{pending: cache.New(ttl, ttl/2)}
}

// Add stores one chunk. A repeated index overwrites the earlier payload.
// Any error discards the whole upload.
func (a *Assembler) Add(clientID string, chunk protocol.FileChunk) (ChunkStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if chunk.TotalChunks <= 0 || chunk.ChunkIndex < 0 || chunk.ChunkIndex >= chunk.TotalChunks {
		a.pending.Delete(chunk.UploadID)
		return ChunkStatus{}, fmt.Errorf("%w: %d of %d", ErrChunkOutOfRange, chunk.ChunkIndex, chunk.TotalChunks)
	}

	var up *pendingUpload
	if x, found := a.pending.Get(chunk.UploadID); found {
		up = x.(*pendingUpload)
		if up.clientID != clientID {
			return ChunkStatus{}, ErrForeignUpload
		}
		if up.total != chunk.TotalChunks {
			a.pending.Delete(chunk.UploadID)
			return ChunkStatus{}, fmt.Errorf("%w: expected %d, got %d", ErrChunkCountMismatch, up.total, chunk.TotalChunks)
		}
	} else {
		up = &pendingUpload{
			clientID: clientID,
			total:    chunk.TotalChunks,
			info:     chunk.FileInfo,
			chunks:   make(map[int]string, chunk.TotalChunks),
		}
	}

	up.chunks[chunk.ChunkIndex] = chunk.Data
	status := ChunkStatus{Received: len(up.chunks), Total: up.total, Info: up.info}
	if len(up.chunks) < up.total {
		// Set refreshes the expiry on every chunk.
		a.pending.Set(chunk.UploadID, up, cache.DefaultExpiration)
		return status, nil
	}

	a.pending.Delete(chunk.UploadID)

	// Every chunk is encoded on its own, so decode before joining.
	var merged bytes.Buffer
	for i := 0; i < up.total; i++ {
		part, err := base64.StdEncoding.DecodeString(up.chunks[i])
		if err != nil {
			return ChunkStatus{}, fmt.Errorf("decode chunk %d: %w", i, err)
		}
		merged.Write(part)
	}
	status.Data = merged.Bytes()
	if status.Data == nil {
		status.Data = []byte{}
	}
	return status, nil
}

// Pending returns how many uploads are still waiting for chunks.
func (a *Assembler) Pending() int {
	return a.pending.ItemCount()
}
