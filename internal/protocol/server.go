package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types.
const (
	TypeConnection            = "connection"
	TypeChatStart             = "chat_start"
	TypeChatContent           = "chat_content"
	TypeChatComplete          = "chat_complete"
	TypeToolCall              = "tool_call"
	TypeToolResult            = "tool_result"
	TypeAnalysisStart         = "analysis_start"
	TypeAnalysisProgress      = "analysis_progress"
	TypeAnalysisToolResult    = "analysis_tool_result"
	TypeAnalysisComplete      = "analysis_complete"
	TypeError                 = "error"
	TypePong                  = "pong"
	TypeUploadProgress        = "upload_progress"
	TypeUploadComplete        = "upload_complete"
	TypeToolExecutionStart    = "tool_execution_start"
	TypeToolExecutionUpdate   = "tool_execution_update"
	TypeToolExecutionComplete = "tool_execution_complete"
)

var ErrMissingType = errors.New("message has no type")

// ServerMessage is the closed set of envelopes the backend sends.
// Unknown types decode to Unrecognized instead of failing.
type ServerMessage interface {
	MessageType() string
}

type Connection struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp,omitempty"`
}

type ChatStart struct {
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type ChatContent struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatComplete struct {
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type ToolCall struct {
	ToolName   string          `json:"tool_name"`
	CallID     string          `json:"call_id,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
}

type ToolResult struct {
	ToolName     string          `json:"tool_name"`
	CallID       string          `json:"call_id,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Display      json.RawMessage `json:"display,omitempty"`
	OriginalArgs json.RawMessage `json:"original_args,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	Timestamp    string          `json:"timestamp,omitempty"`
}

type AnalysisStart struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp,omitempty"`
}

type AnalysisProgress struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	ToolName  string `json:"tool_name,omitempty"`
}

type AnalysisToolResult struct {
	RequestID    string          `json:"request_id"`
	ToolName     string          `json:"tool_name"`
	Result       json.RawMessage `json:"result,omitempty"`
	OriginalArgs json.RawMessage `json:"original_args,omitempty"`
}

type AnalysisComplete struct {
	RequestID string          `json:"request_id"`
	Results   json.RawMessage `json:"results,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type Error struct {
	Message     string `json:"message"`
	ToolName    string `json:"tool_name,omitempty"`
	CallID      string `json:"call_id,omitempty"`
	UploadID    string `json:"upload_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
}

type Pong struct {
	Timestamp string `json:"timestamp,omitempty"`
}

type UploadProgress struct {
	UploadID       string  `json:"upload_id"`
	Progress       float64 `json:"progress"`
	ReceivedChunks int     `json:"received_chunks"`
	TotalChunks    int     `json:"total_chunks"`
}

type UploadComplete struct {
	UploadID string   `json:"upload_id"`
	FileID   string   `json:"file_id"`
	FileInfo FileInfo `json:"file_info"`
}

type ToolExecutionStart struct {
	ExecutionID string          `json:"execution_id"`
	ToolName    string          `json:"tool_name"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type ToolExecutionUpdate struct {
	ExecutionID string `json:"execution_id"`
	Output      string `json:"output"`
}

type ToolExecutionComplete struct {
	ExecutionID string          `json:"execution_id"`
	ToolName    string          `json:"tool_name"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Unrecognized carries a message whose type this client does not know yet.
type Unrecognized struct {
	Type string
	Raw  json.RawMessage
}

func (Connection) MessageType() string            { return TypeConnection }
func (ChatStart) MessageType() string             { return TypeChatStart }
func (ChatContent) MessageType() string           { return TypeChatContent }
func (ChatComplete) MessageType() string          { return TypeChatComplete }
func (ToolCall) MessageType() string              { return TypeToolCall }
func (ToolResult) MessageType() string            { return TypeToolResult }
func (AnalysisStart) MessageType() string         { return TypeAnalysisStart }
func (AnalysisProgress) MessageType() string      { return TypeAnalysisProgress }
func (AnalysisToolResult) MessageType() string    { return TypeAnalysisToolResult }
func (AnalysisComplete) MessageType() string      { return TypeAnalysisComplete }
func (Error) MessageType() string                 { return TypeError }
func (Pong) MessageType() string                  { return TypePong }
func (UploadProgress) MessageType() string        { return TypeUploadProgress }
func (UploadComplete) MessageType() string        { return TypeUploadComplete }
func (ToolExecutionStart) MessageType() string    { return TypeToolExecutionStart }
func (ToolExecutionUpdate) MessageType() string   { return TypeToolExecutionUpdate }
func (ToolExecutionComplete) MessageType() string { return TypeToolExecutionComplete }
func (u Unrecognized) MessageType() string        { return u.Type }

// Decode parses one inbound frame. Invalid JSON or a missing type is an error;
// an unknown type is not.
func Decode(data []byte) (ServerMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if head.Type == "" {
		return nil, ErrMissingType
	}

	var msg ServerMessage
	switch head.Type {
	case TypeConnection:
		msg = decodeAs[Connection](data)
	case TypeChatStart:
		msg = decodeAs[ChatStart](data)
	case TypeChatContent:
		msg = decodeAs[ChatContent](data)
	case TypeChatComplete:
		msg = decodeAs[ChatComplete](data)
	case TypeToolCall:
		msg = decodeAs[ToolCall](data)
	case TypeToolResult:
		msg = decodeAs[ToolResult](data)
	case TypeAnalysisStart:
		msg = decodeAs[AnalysisStart](data)
	case TypeAnalysisProgress:
		msg = decodeAs[AnalysisProgress](data)
	case TypeAnalysisToolResult:
		msg = decodeAs[AnalysisToolResult](data)
	case TypeAnalysisComplete:
		msg = decodeAs[AnalysisComplete](data)
	case TypeError:
		msg = decodeAs[Error](data)
	case TypePong:
		msg = decodeAs[Pong](data)
	case TypeUploadProgress:
		msg = decodeAs[UploadProgress](data)
	case TypeUploadComplete:
		msg = decodeAs[UploadComplete](data)
	case TypeToolExecutionStart:
		msg = decodeAs[ToolExecutionStart](data)
	case TypeToolExecutionUpdate:
		msg = decodeAs[ToolExecutionUpdate](data)
	case TypeToolExecutionComplete:
		msg = decodeAs[ToolExecutionComplete](data)
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unrecognized{Type: head.Type, Raw: raw}, nil
	}

	if d, ok := msg.(decodeFailure); ok {
		return nil, fmt.Errorf("decode %s: %w", head.Type, d.err)
	}
	return msg, nil
}

type decodeFailure struct{ err error }

func (decodeFailure) MessageType() string { return "" }

func decodeAs[T ServerMessage](data []byte) ServerMessage {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return decodeFailure{err: err}
	}
	return v
}
