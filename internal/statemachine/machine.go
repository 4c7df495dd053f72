// Package statemachine applies inbound protocol events to the session store.
// Everything in here runs on the session event loop.
package statemachine

import (
	"encoding/json"
	"fmt"
	"strings"

	"aicca-realtime/internal/adapter"
	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/protocol"
	"aicca-realtime/internal/session"
	"aicca-realtime/internal/transfer"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const module = "StateMachine"

// ToolTypeComplete is the synthetic tool type of an analysis run's aggregate result.
const ToolTypeComplete = "complete"

// Uploads receives the upload events that belong to in-flight transfers.
type Uploads interface {
	HandleProgress(p transfer.Progress)
	HandleComplete(uploadID, fileID string) bool
	HandleError(uploadID, message string) bool
}

type AdaptFunc func(toolName string, payload []byte) adapter.UnifiedAnalysisResult

type analysisRun struct {
	placeholderID string
	fileKey       string
	fileRef       fileRef
	results       int
}

type Machine struct {
	store   *session.Store
	uploads Uploads
	adapt   AdaptFunc
	logger  logger.ILogger
	newID   func() string

	// id the next agent-reply takes when text follows a tool call
	reservedStreamID string
	calls            *correlator
	analyses         map[string]*analysisRun
}

func New(store *session.Store, uploads Uploads, log logger.ILogger) *Machine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Machine{
		store:    store,
		uploads:  uploads,
		adapt:    adapter.Adapt,
		logger:   log,
		newID:    uuid.NewString,
		calls:    newCorrelator(),
		analyses: make(map[string]*analysisRun),
	}
}

// Reset clears the session and every correlation the machine holds.
func (m *Machine) Reset() {
	m.reservedStreamID = ""
	m.calls.clear()
	m.analyses = make(map[string]*analysisRun)
	m.store.Reset()
}

// Outstanding reports how many tool invocations still await a result.
func (m *Machine) Outstanding() int { return m.calls.outstanding() }

// Handle applies one inbound frame. Frames that cannot be decoded are logged and dropped.
func (m *Machine) Handle(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		m.logger.Warn(module, "Dropping malformed frame", map[string]interface{}{
			"error": err.Error(),
			"bytes": len(data),
		})
		return
	}
	m.Apply(msg)
}

func (m *Machine) Apply(msg protocol.ServerMessage) {
	switch ev := msg.(type) {
	case protocol.Connection:
		m.logger.Info(module, "Backend greeting", map[string]interface{}{"status": ev.Status, "client_id": ev.ClientID})
	case protocol.Pong:
		m.logger.Debug(module, "Pong", nil)
	case protocol.ChatStart:
		m.onChatStart()
	case protocol.ChatContent:
		m.onChatContent(ev.Content)
	case protocol.ChatComplete:
		m.onChatComplete()
	case protocol.ToolCall:
		m.onToolCall(ev)
	case protocol.ToolResult:
		m.onToolResult(ev)
	case protocol.AnalysisStart:
		m.onAnalysisStart(ev)
	case protocol.AnalysisProgress:
		m.onAnalysisProgress(ev)
	case protocol.AnalysisToolResult:
		m.onAnalysisToolResult(ev)
	case protocol.AnalysisComplete:
		m.onAnalysisComplete(ev)
	case protocol.Error:
		m.onError(ev)
	case protocol.UploadProgress:
		m.onUploadProgress(ev)
	case protocol.UploadComplete:
		m.onUploadComplete(ev)
	case protocol.ToolExecutionStart:
		m.onToolExecutionStart(ev)
	case protocol.ToolExecutionUpdate:
		m.onToolExecutionUpdate(ev)
	case protocol.ToolExecutionComplete:
		m.onToolExecutionComplete(ev)
	case protocol.Unrecognized:
		m.logger.Info(module, "Ignoring unknown message type", map[string]interface{}{"type": ev.Type})
	default:
		m.logger.Warn(module, "Unhandled message", map[string]interface{}{"type": msg.MessageType()})
	}
}

func (m *Machine) onChatStart() {
	m.reservedStreamID = ""
	id := m.newID()
	m.append(session.ConversationMessage{ID: id, Kind: session.KindThinking})
	m.store.SetStreaming(id)
}

func (m *Machine) onChatContent(fragment string) {
	if id := m.store.StreamingID(); id != "" {
		if current, ok := m.store.Message(id); ok {
			m.update(id, func(msg *session.ConversationMessage) {
				if current.Kind == session.KindThinking {
					msg.Kind = session.KindReply
					msg.Content = fragment
					return
				}
				msg.Content += fragment
			})
			return
		}
	}

	id := m.reservedStreamID
	m.reservedStreamID = ""
	if id == "" {
		id = m.newID()
	}
	m.append(session.ConversationMessage{ID: id, Kind: session.KindReply, Content: fragment})
	m.store.SetStreaming(id)
}

// onChatComplete ends the agent turn. Tool calls still open are taken to have succeeded.
func (m *Machine) onChatComplete() {
	m.store.SetStreaming("")
	m.reservedStreamID = ""

	for _, msg := range m.store.Messages() {
		if msg.Kind != session.KindToolCall || msg.Metadata == nil || !msg.Metadata.Status.Open() {
			continue
		}
		m.setToolStatus(msg.ID, session.ToolSuccess, nil)
	}
	m.calls.settle()
}

func (m *Machine) onToolCall(ev protocol.ToolCall) {
	m.store.SetStreaming("")

	callID := ev.CallID
	if callID == "" {
		callID = m.newID()
	}
	id := m.newID()
	m.append(session.ConversationMessage{
		ID:      id,
		Kind:    session.KindToolCall,
		Content: fmt.Sprintf("Running %s", ev.ToolName),
		Metadata: &session.MessageMetadata{
			ToolName: ev.ToolName,
			Status:   session.ToolExecuting,
			CallID:   callID,
			Args:     cloneRaw(ev.Parameters),
		},
	})
	m.calls.open(ev.ToolName, callID, id, ev.CallID != "")
	m.reservedStreamID = m.newID()
}

func (m *Machine) onToolResult(ev protocol.ToolResult) {
	m.completeInvocation(ev.ToolName, ev.CallID, ev.Result, ev.OriginalArgs)
}

// completeInvocation stores a tool result and resolves the invocation it answers.
func (m *Machine) completeInvocation(toolName, callID string, result, originalArgs json.RawMessage) {
	inv, correlated := m.calls.resolve(toolName, callID)

	args := originalArgs
	if len(args) == 0 && correlated {
		if call, ok := m.store.Message(inv.messageID); ok && call.Metadata != nil {
			args = call.Metadata.Args
		}
	}

	ref := m.storeResult(toolName, result, args)

	if !correlated {
		m.logger.Debug(module, "Tool result without matching invocation", map[string]interface{}{
			"tool_name": toolName,
			"call_id":   callID,
			"file_key":  ref.key(),
		})
		return
	}
	risk := m.adapt(toolName, result).RiskScore
	m.setToolStatus(inv.messageID, session.ToolSuccess, &risk)
}

func (m *Machine) storeResult(toolName string, result, args json.RawMessage) fileRef {
	ref := m.resolveFile(args, result)
	m.store.PutResult(ref.key(), session.AnalysisResult{
		ID:         m.newID(),
		ToolType:   toolName,
		RawPayload: rawOrNull(result),
		FileName:   ref.Name,
		FileID:     ref.ID,
	})
	return ref
}

func (m *Machine) onAnalysisStart(ev protocol.AnalysisStart) {
	requestID := ev.RequestID
	if requestID == "" {
		requestID = m.newID()
	}
	if _, exists := m.analyses[requestID]; exists {
		m.logger.Warn(module, "Duplicate analysis_start", map[string]interface{}{"request_id": requestID})
		return
	}

	id := m.newID()
	m.append(session.ConversationMessage{
		ID:       id,
		Kind:     session.KindThinking,
		Content:  "Analyzing...",
		Metadata: &session.MessageMetadata{RequestID: requestID},
	})
	m.analyses[requestID] = &analysisRun{placeholderID: id}
}

func (m *Machine) onAnalysisProgress(ev protocol.AnalysisProgress) {
	content := ev.Status
	if ev.ToolName != "" {
		content = fmt.Sprintf("%s: %s", ev.ToolName, ev.Status)
	}
	m.appendAlert(content, session.AlertInfo, func(md *session.MessageMetadata) {
		md.RequestID = ev.RequestID
		md.ToolName = ev.ToolName
	})
}

func (m *Machine) onAnalysisToolResult(ev protocol.AnalysisToolResult) {
	ref := m.storeResult(ev.ToolName, ev.Result, ev.OriginalArgs)
	if run, ok := m.analyses[ev.RequestID]; ok {
		run.fileRef = ref
		run.fileKey = ref.key()
		run.results++
	}
}

func (m *Machine) onAnalysisComplete(ev protocol.AnalysisComplete) {
	run, ok := m.analyses[ev.RequestID]
	if ok {
		delete(m.analyses, ev.RequestID)
	} else {
		run = &analysisRun{}
	}

	summary := analysisSummary(ev.Results, run.results)
	if run.placeholderID != "" {
		m.update(run.placeholderID, func(msg *session.ConversationMessage) {
			msg.Kind = session.KindReply
			msg.Content = summary
		})
	} else {
		m.append(session.ConversationMessage{
			ID:       m.newID(),
			Kind:     session.KindReply,
			Content:  summary,
			Metadata: &session.MessageMetadata{RequestID: ev.RequestID},
		})
	}

	key := run.fileKey
	if key == "" {
		key = session.UnknownFileKey
	}
	m.store.PutResult(key, session.AnalysisResult{
		ID:         m.newID(),
		ToolType:   ToolTypeComplete,
		RawPayload: rawOrNull(ev.Results),
		FileName:   run.fileRef.Name,
		FileID:     run.fileRef.ID,
	})
}

func analysisSummary(results json.RawMessage, seen int) string {
	n := seen
	if len(results) > 0 && gjson.ValidBytes(results) {
		parsed := gjson.ParseBytes(results)
		switch {
		case parsed.IsArray():
			n = len(parsed.Array())
		case parsed.IsObject():
			count := 0
			parsed.ForEach(func(_, _ gjson.Result) bool {
				count++
				return true
			})
			n = count
		}
	}
	if n == 1 {
		return "Analysis complete: 1 tool result"
	}
	return fmt.Sprintf("Analysis complete: %d tool results", n)
}

func (m *Machine) onError(ev protocol.Error) {
	message := ev.Message
	if message == "" {
		message = "Unknown error"
	}
	m.appendAlert(message, session.AlertError, func(md *session.MessageMetadata) {
		md.ToolName = ev.ToolName
		md.CallID = firstNonEmpty(ev.CallID, ev.ExecutionID)
		md.RequestID = ev.RequestID
	})

	if ev.UploadID != "" && m.uploads != nil {
		m.uploads.HandleError(ev.UploadID, message)
	}

	callID := firstNonEmpty(ev.CallID, ev.ExecutionID)
	if ev.ToolName != "" || callID != "" {
		if inv, ok := m.calls.resolve(ev.ToolName, callID); ok {
			m.setToolStatus(inv.messageID, session.ToolError, nil)
		}
	}

	if run, ok := m.analyses[ev.RequestID]; ok {
		delete(m.analyses, ev.RequestID)
		m.update(run.placeholderID, func(msg *session.ConversationMessage) {
			msg.Kind = session.KindReply
			msg.Content = "Analysis failed: " + message
		})
	}
}

func (m *Machine) onUploadProgress(ev protocol.UploadProgress) {
	if m.uploads == nil {
		return
	}
	m.uploads.HandleProgress(transfer.Progress{
		UploadID:       ev.UploadID,
		Progress:       ev.Progress,
		ReceivedChunks: ev.ReceivedChunks,
		TotalChunks:    ev.TotalChunks,
	})
}

func (m *Machine) onUploadComplete(ev protocol.UploadComplete) {
	m.store.MapFile(ev.FileInfo.Name, ev.FileID)
	if m.uploads == nil {
		return
	}
	if !m.uploads.HandleComplete(ev.UploadID, ev.FileID) {
		m.logger.Debug(module, "upload_complete for unknown upload", map[string]interface{}{"upload_id": ev.UploadID})
	}
}

// Direct tool executions are correlated by their execution id.
func (m *Machine) onToolExecutionStart(ev protocol.ToolExecutionStart) {
	if ev.ExecutionID == "" {
		m.logger.Warn(module, "tool_execution_start without execution_id", map[string]interface{}{"tool_name": ev.ToolName})
		return
	}
	id := m.newID()
	m.append(session.ConversationMessage{
		ID:      id,
		Kind:    session.KindToolCall,
		Content: fmt.Sprintf("Running %s", ev.ToolName),
		Metadata: &session.MessageMetadata{
			ToolName: ev.ToolName,
			Status:   session.ToolExecuting,
			CallID:   ev.ExecutionID,
			Args:     cloneRaw(ev.Parameters),
		},
	})
	m.calls.open(ev.ToolName, ev.ExecutionID, id, true)
}

func (m *Machine) onToolExecutionUpdate(ev protocol.ToolExecutionUpdate) {
	inv, ok := m.calls.peek(ev.ExecutionID)
	if !ok || ev.Output == "" {
		return
	}
	m.update(inv.messageID, func(msg *session.ConversationMessage) {
		msg.Content = strings.TrimRight(msg.Content, "\n") + "\n" + ev.Output
	})
}

func (m *Machine) onToolExecutionComplete(ev protocol.ToolExecutionComplete) {
	toolName := ev.ToolName
	if inv, ok := m.calls.peek(ev.ExecutionID); ok && toolName == "" {
		toolName = inv.toolName
	}
	m.completeInvocation(toolName, ev.ExecutionID, ev.Result, nil)
}

func (m *Machine) setToolStatus(messageID string, status session.ToolStatus, risk *float64) {
	m.update(messageID, func(msg *session.ConversationMessage) {
		if msg.Metadata == nil {
			msg.Metadata = &session.MessageMetadata{}
		}
		if msg.Metadata.Status.CanAdvanceTo(status) {
			msg.Metadata.Status = status
		}
		if risk != nil {
			score := *risk
			msg.Metadata.RiskScore = &score
		}
	})
}

func (m *Machine) appendAlert(content string, level session.AlertLevel, decorate func(*session.MessageMetadata)) {
	md := &session.MessageMetadata{AlertLevel: level}
	if decorate != nil {
		decorate(md)
	}
	m.append(session.ConversationMessage{ID: m.newID(), Kind: session.KindAlert, Content: content, Metadata: md})
}

func (m *Machine) append(msg session.ConversationMessage) {
	if err := m.store.AppendMessage(msg); err != nil {
		m.logger.Error(module, "Append message failed", map[string]interface{}{"error": err.Error(), "id": msg.ID})
	}
}

func (m *Machine) update(id string, mutate func(*session.ConversationMessage)) {
	if err := m.store.UpdateMessage(id, mutate); err != nil {
		m.logger.Warn(module, "Update message failed", map[string]interface{}{"error": err.Error(), "id": id})
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return cloneRaw(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
