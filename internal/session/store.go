package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateID     = errors.New("message id already exists")
	ErrMessageNotFound = errors.New("message not found")
)

type ChangeType string

const (
	ChangeMessageAdded      ChangeType = "message_added"
	ChangeMessageUpdated    ChangeType = "message_updated"
	ChangeStreaming         ChangeType = "streaming_changed"
	ChangeResultStored      ChangeType = "result_stored"
	ChangeFileMapped        ChangeType = "file_mapped"
	ChangeFilesSelected     ChangeType = "files_selected"
	ChangeConnectionChanged ChangeType = "connection_changed"
	ChangeReset             ChangeType = "reset"
)

// Change describes one mutation. Message and Result are copies owned by the receiver.
type Change struct {
	Type        ChangeType           `json:"type"`
	Message     *ConversationMessage `json:"message,omitempty"`
	Result      *AnalysisResult      `json:"result,omitempty"`
	FileKey     string               `json:"file_key,omitempty"`
	FileName    string               `json:"file_name,omitempty"`
	FileID      string               `json:"file_id,omitempty"`
	StreamingID string               `json:"streaming_id,omitempty"`
	Files       []string             `json:"files,omitempty"`
	Connection  ConnectionState      `json:"connection,omitempty"`
	At          time.Time            `json:"at"`
}

// Notifier observes store mutations. It is called synchronously on the
// goroutine that mutates the store.
type Notifier interface {
	Notify(change Change)
}

type NotifierFunc func(change Change)

func (f NotifierFunc) Notify(change Change) { f(change) }

// Store is the single source of truth for a session. It is not safe for
// concurrent use: every call must come from the session's event loop.
type Store struct {
	state    State
	index    map[string]int
	fileByID map[string]string
	notifier Notifier
	now      func() time.Time
}

func NewStore(notifier Notifier) *Store {
	s := &Store{notifier: notifier, now: time.Now}
	s.zero()
	return s
}

// Reset discards the whole conversation, every result and file mapping.
// The connection state is kept because it reflects the transport, not the conversation.
func (s *Store) Reset() {
	conn := s.state.Connection
	s.zero()
	s.state.Connection = conn
	s.emit(Change{Type: ChangeReset})
}

func (s *Store) zero() {
	s.state = State{
		Messages:      []ConversationMessage{},
		ResultsByFile: map[string][]AnalysisResult{},
		FileIDs:       map[string]string{},
		Connection:    StateDisconnected,
	}
	s.index = map[string]int{}
	s.fileByID = map[string]string{}
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (s *Store) Snapshot() State {
	out := State{
		Messages:      make([]ConversationMessage, len(s.state.Messages)),
		StreamingID:   s.state.StreamingID,
		ResultsByFile: make(map[string][]AnalysisResult, len(s.state.ResultsByFile)),
		FileIDs:       make(map[string]string, len(s.state.FileIDs)),
		SelectedFiles: append([]string(nil), s.state.SelectedFiles...),
		Connection:    s.state.Connection,
	}
	for i, m := range s.state.Messages {
		out.Messages[i] = m.clone()
	}
	for k, v := range s.state.ResultsByFile {
		out.ResultsByFile[k] = cloneResults(v)
	}
	for k, v := range s.state.FileIDs {
		out.FileIDs[k] = v
	}
	if s.state.CurrentAnalysis != nil {
		cur := s.state.CurrentAnalysis.clone()
		out.CurrentAnalysis = &cur
	}
	return out
}

func (s *Store) AppendMessage(msg ConversationMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("append message: empty id")
	}
	if _, exists := s.index[msg.ID]; exists {
		return fmt.Errorf("append message %s: %w", msg.ID, ErrDuplicateID)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.index[msg.ID] = len(s.state.Messages)
	s.state.Messages = append(s.state.Messages, msg)

	added := msg.clone()
	s.emit(Change{Type: ChangeMessageAdded, Message: &added})
	return nil
}

func (s *Store) Message(id string) (ConversationMessage, bool) {
	i, ok := s.index[id]
	if !ok {
		return ConversationMessage{}, false
	}
	return s.state.Messages[i].clone(), true
}

// UpdateMessage mutates a message in place by id.
func (s *Store) UpdateMessage(id string, mutate func(*ConversationMessage)) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("update message %s: %w", id, ErrMessageNotFound)
	}
	msg := &s.state.Messages[i]
	mutate(msg)
	msg.ID = id

	updated := msg.clone()
	s.emit(Change{Type: ChangeMessageUpdated, Message: &updated})
	return nil
}

// Messages returns copies of the conversation in order.
func (s *Store) Messages() []ConversationMessage {
	out := make([]ConversationMessage, len(s.state.Messages))
	for i, m := range s.state.Messages {
		out[i] = m.clone()
	}
	return out
}

func (s *Store) StreamingID() string {
	return s.state.StreamingID
}

// SetStreaming replaces the single current-streaming reference. An empty id clears it.
func (s *Store) SetStreaming(id string) {
	if s.state.StreamingID == id {
		return
	}
	s.state.StreamingID = id
	s.emit(Change{Type: ChangeStreaming, StreamingID: id})
}

// PutResult stores a result under fileKey, replacing any previous result of the same tool.
func (s *Store) PutResult(fileKey string, result AnalysisResult) {
	if fileKey == "" {
		fileKey = UnknownFileKey
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = s.now()
	}

	list := s.state.ResultsByFile[fileKey]
	replaced := false
	for i := range list {
		if list[i].ToolType == result.ToolType {
			list[i] = result
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, result)
	}
	s.state.ResultsByFile[fileKey] = list

	current := result
	s.state.CurrentAnalysis = &current

	stored := result.clone()
	s.emit(Change{Type: ChangeResultStored, Result: &stored, FileKey: fileKey})
}

func (s *Store) Results(fileKey string) []AnalysisResult {
	return cloneResults(s.state.ResultsByFile[fileKey])
}

func (s *Store) FileKeys() []string {
	keys := make([]string, 0, len(s.state.ResultsByFile))
	for k := range s.state.ResultsByFile {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) CurrentAnalysis() (AnalysisResult, bool) {
	if s.state.CurrentAnalysis == nil {
		return AnalysisResult{}, false
	}
	return s.state.CurrentAnalysis.clone(), true
}

// MapFile records the backend id assigned to an uploaded file.
func (s *Store) MapFile(fileName, fileID string) {
	if fileName == "" || fileID == "" {
		return
	}
	if old, ok := s.state.FileIDs[fileName]; ok && old != fileID {
		delete(s.fileByID, old)
	}
	s.state.FileIDs[fileName] = fileID
	s.fileByID[fileID] = fileName
	s.emit(Change{Type: ChangeFileMapped, FileName: fileName, FileID: fileID})
}

func (s *Store) FileID(fileName string) (string, bool) {
	id, ok := s.state.FileIDs[fileName]
	return id, ok
}

func (s *Store) FileName(fileID string) (string, bool) {
	name, ok := s.fileByID[fileID]
	return name, ok
}

func (s *Store) SelectFiles(names []string) {
	s.state.SelectedFiles = append([]string(nil), names...)
	s.emit(Change{Type: ChangeFilesSelected, Files: append([]string(nil), names...)})
}

func (s *Store) SetConnectionState(state ConnectionState) {
	if s.state.Connection == state {
		return
	}
	s.state.Connection = state
	s.emit(Change{Type: ChangeConnectionChanged, Connection: state})
}

func (s *Store) ConnectionState() ConnectionState {
	return s.state.Connection
}

func (s *Store) emit(change Change) {
	if s.notifier == nil {
		return
	}
	change.At = s.now()
	s.notifier.Notify(change)
}
