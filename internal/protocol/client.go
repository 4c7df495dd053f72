package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Outbound message types.
const (
	TypeChat        = "chat"
	TypeAnalyze     = "analyze"
	TypeFileChunk   = "file_chunk"
	TypeToolExecute = "tool_execute"
	TypePing        = "ping"
)

// ClientMessage is any envelope the client sends to the backend.
type ClientMessage interface {
	MessageType() string
}

type Chat struct {
	Type      string `json:"type" validate:"eq=chat"`
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id,omitempty"`
}

type Analyze struct {
	Type       string                 `json:"type" validate:"eq=analyze"`
	Content    string                 `json:"content" validate:"required"`
	SourceType string                 `json:"source_type" validate:"oneof=upload url text"`
	Options    map[string]interface{} `json:"options,omitempty"`
}

type FileInfo struct {
	Name string `json:"name" validate:"required"`
	Size int64  `json:"size" validate:"gte=0"`
	Type string `json:"type,omitempty"`
}

type FileChunk struct {
	Type        string   `json:"type" validate:"eq=file_chunk"`
	UploadID    string   `json:"upload_id" validate:"required"`
	ChunkIndex  int      `json:"chunk_index" validate:"gte=0,ltfield=TotalChunks"`
	TotalChunks int      `json:"total_chunks" validate:"gt=0"`
	Data        string   `json:"data" validate:"required,base64"`
	FileInfo    FileInfo `json:"file_info"`
}

type ToolExecute struct {
	Type     string                 `json:"type" validate:"eq=tool_execute"`
	ToolName string                 `json:"tool_name" validate:"required"`
	Args     map[string]interface{} `json:"args"`
}

type Ping struct {
	Type string `json:"type" validate:"eq=ping"`
}

func (Chat) MessageType() string        { return TypeChat }
func (Analyze) MessageType() string     { return TypeAnalyze }
func (FileChunk) MessageType() string   { return TypeFileChunk }
func (ToolExecute) MessageType() string { return TypeToolExecute }
func (Ping) MessageType() string        { return TypePing }

func NewChat(message, sessionID string) Chat {
	return Chat{Type: TypeChat, Message: message, SessionID: sessionID}
}

func NewAnalyze(content, sourceType string, options map[string]interface{}) Analyze {
	return Analyze{Type: TypeAnalyze, Content: content, SourceType: sourceType, Options: options}
}

func NewFileChunk(uploadID string, index, total int, data string, info FileInfo) FileChunk {
	return FileChunk{
		Type:        TypeFileChunk,
		UploadID:    uploadID,
		ChunkIndex:  index,
		TotalChunks: total,
		Data:        data,
		FileInfo:    info,
	}
}

func NewToolExecute(toolName string, args map[string]interface{}) ToolExecute {
	if args == nil {
		args = map[string]interface{}{}
	}
	return ToolExecute{Type: TypeToolExecute, ToolName: toolName, Args: args}
}

func NewPing() Ping {
	return Ping{Type: TypePing}
}

var validate = validator.New()

// Encode validates an outbound envelope and serializes it.
func Encode(msg ClientMessage) ([]byte, error) {
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", msg.MessageType(), err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", msg.MessageType(), err)
	}
	return data, nil
}
