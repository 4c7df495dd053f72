// Package transfer uploads files over the session connection as a sequence of
// base64 file_chunk frames and waits for the backend to acknowledge them.
package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"aicca-realtime/internal/eventloop"
	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/protocol"

	"github.com/google/uuid"
)

const module = "Transfer"

const (
	DefaultChunkSize  = 1024 * 1024
	DefaultChunkDelay = 100 * time.Millisecond
	DefaultTimeout    = 30 * time.Second
)

var (
	ErrUploadTimeout  = errors.New("upload timed out")
	ErrUploadRejected = errors.New("upload rejected")
	ErrEmptyFile      = errors.New("file is empty")
	ErrShortRead      = errors.New("file shorter than declared size")
)

// Sender delivers outbound frames; the connection manager satisfies it.
type Sender interface {
	Send(msg protocol.ClientMessage) error
}

// Config zero values select the defaults. A negative ChunkDelay disables pacing.
type Config struct {
	ChunkSize  int
	ChunkDelay time.Duration
	Timeout    time.Duration
}

type Progress struct {
	UploadID       string
	Progress       float64
	ReceivedChunks int
	TotalChunks    int
}

type UploadOption func(*uploadOptions)

type uploadOptions struct {
	onProgress func(Progress)
}

// WithProgress registers a callback for upload_progress events. It runs on
// the event loop and must not block.
func WithProgress(fn func(Progress)) UploadOption {
	return func(o *uploadOptions) { o.onProgress = fn }
}

type outcome struct {
	fileID string
	err    error
}

type listener struct {
	done       chan outcome
	onProgress func(Progress)
}

type Engine struct {
	loop   *eventloop.Loop
	sender Sender
	cfg    Config
	logger logger.ILogger
	newID  func() string

	// owned by the loop
	listeners map[string]*listener
}

func NewEngine(loop *eventloop.Loop, sender Sender, cfg Config, log logger.ILogger) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	switch {
	case cfg.ChunkDelay == 0:
		cfg.ChunkDelay = DefaultChunkDelay
	case cfg.ChunkDelay < 0:
		cfg.ChunkDelay = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Engine{
		loop:      loop,
		sender:    sender,
		cfg:       cfg,
		logger:    log,
		newID:     uuid.NewString,
		listeners: make(map[string]*listener),
	}
}

// SendFile streams file as chunks and blocks until the backend reports the
// stored file id or an error, or until Timeout passes without either.
// The timeout is measured from the last chunk sent, so pacing a large file
// never eats into the time the backend has to answer. An error arriving while
// chunks are still going out stops the upload early.
// Concurrent calls run independently. Must not be called from the loop.
func (e *Engine) SendFile(ctx context.Context, file File, opts ...UploadOption) (string, error) {
	if file.Size <= 0 {
		return "", fmt.Errorf("upload %s: %w", file.Name, ErrEmptyFile)
	}
	var o uploadOptions
	for _, opt := range opts {
		opt(&o)
	}

	uploadID := e.newID()
	total := int((file.Size + int64(e.cfg.ChunkSize) - 1) / int64(e.cfg.ChunkSize))
	l := &listener{done: make(chan outcome, 1), onProgress: o.onProgress}

	if err := e.loop.Call(ctx, func() { e.listeners[uploadID] = l }); err != nil {
		return "", fmt.Errorf("register upload %s: %w", uploadID, err)
	}
	defer e.loop.Post(func() { delete(e.listeners, uploadID) })

	info := protocol.FileInfo{Name: file.Name, Size: file.Size, Type: file.Type}
	e.logger.Info(module, "Starting upload", map[string]interface{}{
		"upload_id":    uploadID,
		"file_name":    file.Name,
		"size":         file.Size,
		"total_chunks": total,
	})

	buf := make([]byte, e.cfg.ChunkSize)
	for index := 0; index < total; index++ {
		if index > 0 && e.cfg.ChunkDelay > 0 {
			if err := sleep(ctx, e.cfg.ChunkDelay); err != nil {
				return "", err
			}
		}
		select {
		case res := <-l.done:
			return e.finish(uploadID, res)
		default:
		}

		want := e.cfg.ChunkSize
		if remaining := file.Size - int64(index)*int64(e.cfg.ChunkSize); remaining < int64(want) {
			want = int(remaining)
		}
		n, err := io.ReadFull(file.Content, buf[:want])
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				err = ErrShortRead
			}
			return "", fmt.Errorf("read chunk %d of %s: %w", index, file.Name, err)
		}

		chunk := protocol.NewFileChunk(uploadID, index, total, base64.StdEncoding.EncodeToString(buf[:n]), info)
		if err := e.sender.Send(chunk); err != nil {
			return "", fmt.Errorf("send chunk %d of %s: %w", index, file.Name, err)
		}
	}

	timer := time.NewTimer(e.cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-l.done:
		return e.finish(uploadID, res)
	case <-timer.C:
		e.logger.Warn(module, "Upload timed out", map[string]interface{}{"upload_id": uploadID, "timeout": e.cfg.Timeout.String()})
		return "", fmt.Errorf("upload %s: %w", uploadID, ErrUploadTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Engine) finish(uploadID string, res outcome) (string, error) {
	if res.err != nil {
		e.logger.Warn(module, "Upload failed", map[string]interface{}{"upload_id": uploadID, "error": res.err.Error()})
		return "", res.err
	}
	e.logger.Info(module, "Upload complete", map[string]interface{}{"upload_id": uploadID, "file_id": res.fileID})
	return res.fileID, nil
}

// HandleProgress, HandleComplete and HandleError are called on the loop by the
// protocol state machine. Events for unknown upload ids are ignored.
func (e *Engine) HandleProgress(p Progress) {
	l, ok := e.listeners[p.UploadID]
	if !ok || l.onProgress == nil {
		return
	}
	l.onProgress(p)
}

func (e *Engine) HandleComplete(uploadID, fileID string) bool {
	return e.resolve(uploadID, outcome{fileID: fileID})
}

func (e *Engine) HandleError(uploadID, message string) bool {
	return e.resolve(uploadID, outcome{err: fmt.Errorf("%w: %s", ErrUploadRejected, message)})
}

// Pending reports how many uploads are waiting on the backend. Loop only.
func (e *Engine) Pending() int {
	return len(e.listeners)
}

func (e *Engine) resolve(uploadID string, res outcome) bool {
	l, ok := e.listeners[uploadID]
	if !ok {
		return false
	}
	delete(e.listeners, uploadID)
	select {
	case l.done <- res:
	default:
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
