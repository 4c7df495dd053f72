package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	changes []Change
}

func (r *recorder) Notify(c Change) { r.changes = append(r.changes, c) }

func (r *recorder) types() []ChangeType {
	out := make([]ChangeType, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Type
	}
	return out
}

func TestPutResultKeepsOneEntryPerTool(t *testing.T) {
	store := NewStore(nil)

	store.PutResult("f1", AnalysisResult{ID: "r1", ToolType: "deepfake_detector", RawPayload: json.RawMessage(`{"v":1}`)})
	store.PutResult("f1", AnalysisResult{ID: "r2", ToolType: "c2pa_verify", RawPayload: json.RawMessage(`{"v":2}`)})
	store.PutResult("f1", AnalysisResult{ID: "r3", ToolType: "deepfake_detector", RawPayload: json.RawMessage(`{"v":3}`)})

	results := store.Results("f1")
	require.Len(t, results, 2)
	assert.Equal(t, "r3", results[0].ID, "replacement keeps the original position")
	assert.JSONEq(t, `{"v":3}`, string(results[0].RawPayload))
	assert.Equal(t, "c2pa_verify", results[1].ToolType)

	current, ok := store.CurrentAnalysis()
	require.True(t, ok)
	assert.Equal(t, "r3", current.ID)
}

func TestPutResultWithEmptyKeyUsesUnknown(t *testing.T) {
	store := NewStore(nil)
	store.PutResult("", AnalysisResult{ID: "r1", ToolType: "ai_detector"})
	assert.Len(t, store.Results(UnknownFileKey), 1)
}

func TestAppendMessageRejectsDuplicateIDs(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.AppendMessage(ConversationMessage{ID: "m1", Kind: KindUser, Content: "hi"}))

	err := store.AppendMessage(ConversationMessage{ID: "m1", Kind: KindUser})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Len(t, store.Messages(), 1)
}

func TestUpdateMessageMutatesInPlaceAndNotifies(t *testing.T) {
	rec := &recorder{}
	store := NewStore(rec)
	require.NoError(t, store.AppendMessage(ConversationMessage{ID: "m1", Kind: KindThinking}))

	require.NoError(t, store.UpdateMessage("m1", func(m *ConversationMessage) {
		m.Kind = KindReply
		m.Content = "done"
	}))

	msg, ok := store.Message("m1")
	require.True(t, ok)
	assert.Equal(t, KindReply, msg.Kind)
	assert.Equal(t, "done", msg.Content)
	assert.Equal(t, []ChangeType{ChangeMessageAdded, ChangeMessageUpdated}, rec.types())

	assert.ErrorIs(t, store.UpdateMessage("missing", func(*ConversationMessage) {}), ErrMessageNotFound)
}

func TestSnapshotIsDetached(t *testing.T) {
	store := NewStore(nil)
	risk := 10.0
	require.NoError(t, store.AppendMessage(ConversationMessage{
		ID:       "m1",
		Kind:     KindToolCall,
		Metadata: &MessageMetadata{ToolName: "x", Status: ToolExecuting, RiskScore: &risk},
	}))
	store.MapFile("a.png", "f1")

	snap := store.Snapshot()
	*snap.Messages[0].Metadata.RiskScore = 99
	snap.Messages[0].Metadata.Status = ToolError
	snap.FileIDs["b.png"] = "f2"

	msg, _ := store.Message("m1")
	assert.Equal(t, ToolExecuting, msg.Metadata.Status)
	assert.Equal(t, 10.0, *msg.Metadata.RiskScore)
	_, ok := store.FileID("b.png")
	assert.False(t, ok)
}

func TestSnapshotCopiesRawJSON(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.AppendMessage(ConversationMessage{
		ID:       "m1",
		Kind:     KindToolCall,
		Metadata: &MessageMetadata{ToolName: "x", Args: json.RawMessage(`{"a":1}`)},
	}))
	store.PutResult("f1", AnalysisResult{ToolType: "x", RawPayload: json.RawMessage(`{"score":1}`)})

	snap := store.Snapshot()
	snap.Messages[0].Metadata.Args[2] = 'b'
	snap.ResultsByFile["f1"][0].RawPayload[2] = 'S'
	snap.CurrentAnalysis.RawPayload[3] = 'C'

	got, ok := store.CurrentAnalysis()
	require.True(t, ok)
	got.RawPayload[4] = 'O'
	store.Results("f1")[0].RawPayload[5] = 'R'

	msg, _ := store.Message("m1")
	assert.JSONEq(t, `{"a":1}`, string(msg.Metadata.Args))
	assert.JSONEq(t, `{"score":1}`, string(store.Results("f1")[0].RawPayload))
	cur, _ := store.CurrentAnalysis()
	assert.JSONEq(t, `{"score":1}`, string(cur.RawPayload))
}

func TestResetClearsConversationButKeepsConnection(t *testing.T) {
	rec := &recorder{}
	store := NewStore(rec)
	store.SetConnectionState(StateConnected)
	require.NoError(t, store.AppendMessage(ConversationMessage{ID: "m1", Kind: KindUser}))
	store.SetStreaming("m1")
	store.PutResult("f1", AnalysisResult{ID: "r1", ToolType: "t"})
	store.MapFile("a.png", "f1")
	store.SelectFiles([]string{"a.png"})

	store.Reset()

	snap := store.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.StreamingID)
	assert.Empty(t, snap.ResultsByFile)
	assert.Nil(t, snap.CurrentAnalysis)
	assert.Empty(t, snap.FileIDs)
	assert.Empty(t, snap.SelectedFiles)
	assert.Equal(t, StateConnected, snap.Connection)
	_, ok := store.FileName("f1")
	assert.False(t, ok)

	// the id is free again after a reset
	require.NoError(t, store.AppendMessage(ConversationMessage{ID: "m1", Kind: KindUser}))
	assert.Equal(t, ChangeReset, rec.changes[len(rec.changes)-2].Type)
}

func TestMapFileKeepsReverseIndexConsistent(t *testing.T) {
	store := NewStore(nil)
	store.MapFile("a.png", "f1")
	store.MapFile("a.png", "f2")

	_, ok := store.FileName("f1")
	assert.False(t, ok)
	name, ok := store.FileName("f2")
	require.True(t, ok)
	assert.Equal(t, "a.png", name)
}

func TestToolStatusTransitions(t *testing.T) {
	assert.True(t, ToolPending.CanAdvanceTo(ToolExecuting))
	assert.True(t, ToolExecuting.CanAdvanceTo(ToolSuccess))
	assert.True(t, ToolExecuting.CanAdvanceTo(ToolError))
	assert.False(t, ToolExecuting.CanAdvanceTo(ToolPending))
	assert.False(t, ToolError.CanAdvanceTo(ToolSuccess))
	assert.False(t, ToolSuccess.CanAdvanceTo(ToolSuccess))
}

func TestFileKeyPrefersID(t *testing.T) {
	assert.Equal(t, "f1", FileKey("f1", "a.png"))
	assert.Equal(t, "a.png", FileKey("", "a.png"))
	assert.Equal(t, UnknownFileKey, FileKey("", ""))
}
