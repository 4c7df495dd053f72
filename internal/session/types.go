package session

import (
	"encoding/json"
	"time"
)

type MessageKind string

const (
	KindUser     MessageKind = "user"
	KindThinking MessageKind = "agent-thinking"
	KindToolCall MessageKind = "tool-call"
	KindReply    MessageKind = "agent-reply"
	KindAlert    MessageKind = "system-alert"
)

type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolExecuting ToolStatus = "executing"
	ToolSuccess   ToolStatus = "success"
	ToolError     ToolStatus = "error"
)

var toolStatusRank = map[ToolStatus]int{
	ToolPending:   0,
	ToolExecuting: 1,
	ToolSuccess:   2,
	ToolError:     3,
}

// Open reports whether a tool call is still waiting for its result.
func (s ToolStatus) Open() bool {
	return s == ToolPending || s == ToolExecuting
}

// CanAdvanceTo enforces forward-only transitions; error is terminal.
func (s ToolStatus) CanAdvanceTo(next ToolStatus) bool {
	if s == ToolError {
		return false
	}
	return toolStatusRank[next] > toolStatusRank[s]
}

type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

type MessageMetadata struct {
	ToolName   string          `json:"tool_name,omitempty"`
	Status     ToolStatus      `json:"status,omitempty"`
	CallID     string          `json:"call_id,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	RiskScore  *float64        `json:"risk_score,omitempty"`
	AlertLevel AlertLevel      `json:"alert_level,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
}

type ConversationMessage struct {
	ID        string           `json:"id"`
	Kind      MessageKind      `json:"kind"`
	Content   string           `json:"content"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func (m ConversationMessage) clone() ConversationMessage {
	if m.Metadata != nil {
		md := *m.Metadata
		if md.RiskScore != nil {
			risk := *md.RiskScore
			md.RiskScore = &risk
		}
		if md.Args != nil {
			md.Args = append(json.RawMessage(nil), md.Args...)
		}
		m.Metadata = &md
	}
	return m
}

type AnalysisResult struct {
	ID         string          `json:"id"`
	ToolType   string          `json:"tool_type"`
	RawPayload json.RawMessage `json:"raw_payload"`
	Timestamp  time.Time       `json:"timestamp"`
	FileName   string          `json:"file_name,omitempty"`
	FileID     string          `json:"file_id,omitempty"`
}

func (r AnalysisResult) clone() AnalysisResult {
	if r.RawPayload != nil {
		r.RawPayload = append(json.RawMessage(nil), r.RawPayload...)
	}
	return r
}

func cloneResults(list []AnalysisResult) []AnalysisResult {
	if list == nil {
		return nil
	}
	out := make([]AnalysisResult, len(list))
	for i, r := range list {
		out[i] = r.clone()
	}
	return out
}

// UnknownFileKey indexes results that could not be tied to any file.
const UnknownFileKey = "unknown"

// FileKey prefers the backend file id over the file name.
func FileKey(fileID, fileName string) string {
	switch {
	case fileID != "":
		return fileID
	case fileName != "":
		return fileName
	default:
		return UnknownFileKey
	}
}

// State is the whole session. Only Store.Reset zeroes it.
type State struct {
	Messages        []ConversationMessage       `json:"messages"`
	StreamingID     string                      `json:"streaming_id,omitempty"`
	ResultsByFile   map[string][]AnalysisResult `json:"results_by_file"`
	CurrentAnalysis *AnalysisResult             `json:"current_analysis,omitempty"`
	FileIDs         map[string]string           `json:"file_ids"`
	SelectedFiles   []string                    `json:"selected_files,omitempty"`
	Connection      ConnectionState             `json:"connection"`
}
