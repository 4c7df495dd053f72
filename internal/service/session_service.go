package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"aicca-realtime/internal/adapter"
	"aicca-realtime/internal/connection"
	"aicca-realtime/internal/eventloop"
	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/protocol"
	"aicca-realtime/internal/session"
	"aicca-realtime/internal/statemachine"
	"aicca-realtime/internal/transfer"

	"github.com/google/uuid"
)

var ErrEmptyMessage = errors.New("message is empty")

// ToolResultView is one stored tool result next to its normalized form.
type ToolResultView struct {
	ToolType string                        `json:"tool_type"`
	Raw      session.AnalysisResult        `json:"raw"`
	Unified  adapter.UnifiedAnalysisResult `json:"unified"`
}

// FileResults groups the results stored under one file key.
type FileResults struct {
	FileKey  string           `json:"file_key"`
	FileName string           `json:"file_name,omitempty"`
	Results  []ToolResultView `json:"results"`
}

type ISessionService interface {
	// Start connects under clientID, generating one when empty, and returns the id in use.
	Start(clientID string) string
	Stop()
	SendChat(ctx context.Context, text string) error
	Analyze(ctx context.Context, content, sourceType string, options map[string]interface{}) error
	ExecuteTool(ctx context.Context, toolName string, args map[string]interface{}) error
	Ping() error
	Upload(ctx context.Context, file transfer.File, opts ...transfer.UploadOption) (string, error)
	SelectFiles(ctx context.Context, names []string) error
	Reset(ctx context.Context) error
	Results(ctx context.Context) ([]FileResults, error)
	Snapshot(ctx context.Context) (session.State, error)
	SessionID(ctx context.Context) (string, error)
}

type sessionService struct {
	loop      *eventloop.Loop
	store     *session.Store
	machine   *statemachine.Machine
	manager   *connection.Manager
	engine    *transfer.Engine
	sessionID string
	logger    logger.ILogger
}

// NewSessionService drives a session whose components all live on loop.
// An empty sessionID defaults to ws_<clientID>.
func NewSessionService(
	loop *eventloop.Loop,
	store *session.Store,
	machine *statemachine.Machine,
	manager *connection.Manager,
	engine *transfer.Engine,
	sessionID string,
	log logger.ILogger,
) ISessionService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &sessionService{
		loop:      loop,
		store:     store,
		machine:   machine,
		manager:   manager,
		engine:    engine,
		sessionID: sessionID,
		logger:    log,
	}
}

func (s *sessionService) Start(clientID string) string {
	id := s.manager.Connect(clientID)
	s.logger.Info("SessionService", "Session started", map[string]interface{}{"client_id": id})
	return id
}

func (s *sessionService) Stop() {
	s.manager.Disconnect()
}

// SendChat records the user's message and sends it to the agent in one loop turn,
// so the user message always precedes anything the agent answers.
func (s *sessionService) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	var sendErr error
	err := s.loop.Call(ctx, func() {
		msg := protocol.NewChat(text, s.currentSessionID())
		if _, sendErr = protocol.Encode(msg); sendErr != nil {
			return
		}
		if sendErr = s.store.AppendMessage(session.ConversationMessage{
			ID:      uuid.NewString(),
			Kind:    session.KindUser,
			Content: text,
		}); sendErr != nil {
			return
		}
		sendErr = s.manager.Send(msg)
	})
	if err != nil {
		return err
	}
	return sendErr
}

func (s *sessionService) Analyze(_ context.Context, content, sourceType string, options map[string]interface{}) error {
	if sourceType == "" {
		sourceType = "text"
	}
	return s.manager.Send(protocol.NewAnalyze(content, sourceType, options))
}

func (s *sessionService) ExecuteTool(_ context.Context, toolName string, args map[string]interface{}) error {
	return s.manager.Send(protocol.NewToolExecute(toolName, args))
}

func (s *sessionService) Ping() error {
	return s.manager.Ping()
}

func (s *sessionService) Upload(ctx context.Context, file transfer.File, opts ...transfer.UploadOption) (string, error) {
	fileID, err := s.engine.SendFile(ctx, file, opts...)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", file.Name, err)
	}
	return fileID, nil
}

func (s *sessionService) SelectFiles(ctx context.Context, names []string) error {
	return s.loop.Call(ctx, func() { s.store.SelectFiles(names) })
}

// Reset clears the conversation and reconnects so the backend starts a fresh agent session.
func (s *sessionService) Reset(ctx context.Context) error {
	if err := s.loop.Call(ctx, s.machine.Reset); err != nil {
		return err
	}
	s.manager.Reconnect()
	return nil
}

func (s *sessionService) Results(ctx context.Context) ([]FileResults, error) {
	var state session.State
	if err := s.loop.Call(ctx, func() { state = s.store.Snapshot() }); err != nil {
		return nil, err
	}

	names := make(map[string]string, len(state.FileIDs))
	for name, id := range state.FileIDs {
		names[id] = name
	}

	keys := make([]string, 0, len(state.ResultsByFile))
	for key := range state.ResultsByFile {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]FileResults, 0, len(keys))
	for _, key := range keys {
		fr := FileResults{FileKey: key, FileName: names[key]}
		if fr.FileName == "" && key != session.UnknownFileKey {
			fr.FileName = key
		}
		for _, r := range state.ResultsByFile[key] {
			fr.Results = append(fr.Results, ToolResultView{
				ToolType: r.ToolType,
				Raw:      r,
				Unified:  adapter.Adapt(r.ToolType, r.RawPayload),
			})
		}
		out = append(out, fr)
	}
	return out, nil
}

func (s *sessionService) Snapshot(ctx context.Context) (session.State, error) {
	var state session.State
	err := s.loop.Call(ctx, func() { state = s.store.Snapshot() })
	return state, err
}

func (s *sessionService) SessionID(ctx context.Context) (string, error) {
	var id string
	err := s.loop.Call(ctx, func() { id = s.currentSessionID() })
	return id, err
}

// currentSessionID must run on the loop.
func (s *sessionService) currentSessionID() string {
	if s.sessionID != "" {
		return s.sessionID
	}
	if clientID := s.manager.ClientID(); clientID != "" {
		return "ws_" + clientID
	}
	return ""
}
