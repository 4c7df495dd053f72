package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/protocol"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Replier sends server envelopes back to one client.
type Replier interface {
	ClientID() string
	Reply(msg interface{}) error
}

// Dispatcher handles one inbound frame from a client.
type Dispatcher interface {
	Dispatch(ctx context.Context, r Replier, data []byte)
}

// inbound is the union of every field a client frame may carry.
type inbound struct {
	Type string `json:"type"`

	Message   string `json:"message"`
	SessionID string `json:"session_id"`

	Content    string                 `json:"content"`
	SourceType string                 `json:"source_type"`
	Options    map[string]interface{} `json:"options"`

	UploadID    string            `json:"upload_id"`
	ChunkIndex  int               `json:"chunk_index"`
	TotalChunks int               `json:"total_chunks"`
	Data        string            `json:"data"`
	FileInfo    protocol.FileInfo `json:"file_info"`

	ToolName   string                 `json:"tool_name"`
	Args       map[string]interface{} `json:"args"`
	Parameters map[string]interface{} `json:"parameters"`
}

var fileCommands = map[string]bool{"/files": true, "files": true, "list": true}

// Agent is a stand-in for the verification agent. It echoes chat, accepts
// chunked uploads and reports that it has no tools.
type Agent struct {
	assembler *Assembler
	storage   *FileStorage
	files     FileRegistry
	logger    logger.ILogger
	now       func() time.Time
}

func NewAgent(assembler *Assembler, storage *FileStorage, files FileRegistry, log logger.ILogger) *Agent {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Agent{
		assembler: assembler,
		storage:   storage,
		files:     files,
		logger:    log,
		now:       time.Now,
	}
}

func envelope(msgType string, fields fiber.Map) fiber.Map {
	if fields == nil {
		fields = fiber.Map{}
	}
	fields["type"] = msgType
	return fields
}

func (a *Agent) timestamp() string {
	return a.now().UTC().Format(time.RFC3339Nano)
}

// Greet sends the connection acknowledgement.
func (a *Agent) Greet(r Replier) {
	a.reply(r, envelope(protocol.TypeConnection, fiber.Map{
		"status":    "connected",
		"client_id": r.ClientID(),
		"timestamp": a.timestamp(),
	}))
}

func (a *Agent) Dispatch(ctx context.Context, r Replier, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		a.reply(r, envelope(protocol.TypeError, fiber.Map{"message": "Invalid message format: " + err.Error()}))
		return
	}

	switch msg.Type {
	case protocol.TypeChat:
		a.handleChat(ctx, r, msg)
	case protocol.TypeAnalyze:
		a.handleAnalyze(r, msg)
	case protocol.TypeFileChunk:
		a.handleFileChunk(ctx, r, msg)
	case protocol.TypeToolExecute:
		a.handleToolExecute(r, msg)
	case protocol.TypePing:
		a.reply(r, envelope(protocol.TypePong, fiber.Map{"timestamp": a.timestamp()}))
	default:
		a.reply(r, envelope(protocol.TypeError, fiber.Map{"message": fmt.Sprintf("Unknown message type: %s", msg.Type)}))
	}
}

func (a *Agent) handleChat(ctx context.Context, r Replier, msg inbound) {
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = "ws_" + r.ClientID()
	}

	files, err := a.files.List(ctx, r.ClientID())
	if err != nil {
		a.logger.Warn("Agent", "Failed to load session files", map[string]interface{}{"client_id": r.ClientID(), "error": err.Error()})
	}

	if fileCommands[strings.ToLower(strings.TrimSpace(msg.Message))] {
		a.reply(r, envelope(protocol.TypeChatContent, fiber.Map{"content": listFiles(files), "session_id": sessionID}))
		a.reply(r, envelope(protocol.TypeChatComplete, fiber.Map{"session_id": sessionID}))
		return
	}

	a.reply(r, envelope(protocol.TypeChatStart, fiber.Map{"session_id": sessionID, "timestamp": a.timestamp()}))
	for _, piece := range streamPieces(echoReply(msg.Message, files)) {
		a.reply(r, envelope(protocol.TypeChatContent, fiber.Map{"content": piece, "session_id": sessionID}))
	}
	a.reply(r, envelope(protocol.TypeChatComplete, fiber.Map{"session_id": sessionID, "timestamp": a.timestamp()}))
}

func listFiles(files []SessionFile) string {
	if len(files) == 0 {
		return "No files uploaded yet. Please upload files first."
	}
	var b strings.Builder
	b.WriteString("Available files for analysis:\n\n")
	for i, f := range files {
		fmt.Fprintf(&b, "[%d] %s (%s) - file:%s\n", i+1, f.Name, f.Type, f.FileID)
	}
	b.WriteString("\nYou can request analysis by mentioning the file name or type.")
	return b.String()
}

func echoReply(message string, files []SessionFile) string {
	if len(files) == 0 {
		return "You said: " + message
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, fmt.Sprintf("%s (file:%s)", f.Name, f.FileID))
	}
	return fmt.Sprintf("You said: %s\n\nFiles in this session: %s", message, strings.Join(names, ", "))
}

// streamPieces splits text into word-sized deltas whose concatenation is text.
func streamPieces(text string) []string {
	var pieces []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == ' ' {
			pieces = append(pieces, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		pieces = append(pieces, text[start:])
	}
	return pieces
}

func (a *Agent) handleAnalyze(r Replier, msg inbound) {
	requestID := uuid.New().String()
	a.reply(r, envelope(protocol.TypeAnalysisStart, fiber.Map{"request_id": requestID, "timestamp": a.timestamp()}))
	a.reply(r, envelope(protocol.TypeAnalysisProgress, fiber.Map{
		"request_id": requestID,
		"status":     fmt.Sprintf("No analysis tools available for %s content", sourceTypeOrText(msg.SourceType)),
	}))
	a.reply(r, envelope(protocol.TypeAnalysisComplete, fiber.Map{
		"request_id": requestID,
		"results":    fiber.Map{},
		"timestamp":  a.timestamp(),
	}))
}

func sourceTypeOrText(sourceType string) string {
	if sourceType == "" {
		return "text"
	}
	return sourceType
}

func (a *Agent) handleFileChunk(ctx context.Context, r Replier, msg inbound) {
	status, err := a.assembler.Add(r.ClientID(), protocol.NewFileChunk(msg.UploadID, msg.ChunkIndex, msg.TotalChunks, msg.Data, msg.FileInfo))
	if err != nil {
		a.uploadFailed(r, msg.UploadID, err)
		return
	}

	a.reply(r, envelope(protocol.TypeUploadProgress, fiber.Map{
		"upload_id":       msg.UploadID,
		"progress":        status.Progress(),
		"received_chunks": status.Received,
		"total_chunks":    status.Total,
	}))
	if !status.Complete() {
		return
	}

	fileID, size, err := a.storage.Save(bytes.NewReader(status.Data))
	if err != nil {
		a.uploadFailed(r, msg.UploadID, err)
		return
	}

	name := status.Info.Name
	if name == "" {
		name = "upload.bin"
	}
	entry := SessionFile{FileID: fileID, Name: name, Type: status.Info.Type, Size: size}
	if err := a.files.Add(ctx, r.ClientID(), entry); err != nil {
		a.logger.Warn("Agent", "Failed to register session file", map[string]interface{}{"client_id": r.ClientID(), "error": err.Error()})
	}

	a.logger.Info("Agent", "Upload completed", map[string]interface{}{
		"client_id": r.ClientID(),
		"upload_id": msg.UploadID,
		"file_id":   fileID,
		"size":      size,
	})
	a.reply(r, envelope(protocol.TypeUploadComplete, fiber.Map{
		"upload_id": msg.UploadID,
		"file_id":   fileID,
		"file_info": status.Info,
	}))
}

func (a *Agent) uploadFailed(r Replier, uploadID string, err error) {
	a.logger.Warn("Agent", "Upload failed", map[string]interface{}{"client_id": r.ClientID(), "upload_id": uploadID, "error": err.Error()})
	a.reply(r, envelope(protocol.TypeError, fiber.Map{
		"message":   "File upload error: " + err.Error(),
		"upload_id": uploadID,
	}))
}

func (a *Agent) handleToolExecute(r Replier, msg inbound) {
	a.reply(r, envelope(protocol.TypeError, fiber.Map{
		"message":      "Tool not found: " + msg.ToolName,
		"execution_id": uuid.New().String(),
	}))
}

func (a *Agent) reply(r Replier, msg fiber.Map) {
	if err := r.Reply(msg); err != nil {
		a.logger.Warn("Agent", "Failed to reply", map[string]interface{}{
			"client_id": r.ClientID(),
			"type":      msg["type"],
			"error":     err.Error(),
		})
	}
}
