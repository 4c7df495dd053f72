package main

import (
	"bytes"
	"testing"

	"aicca-realtime/internal/adapter"
	"aicca-realtime/internal/service"
	"aicca-realtime/internal/session"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func newTestRenderer(t *testing.T) (*renderer, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	return newRenderer(&buf), &buf
}

func reply(id, content string) session.Change {
	return session.Change{
		Type:    session.ChangeMessageUpdated,
		Message: &session.ConversationMessage{ID: id, Kind: session.KindReply, Content: content},
	}
}

func TestRendererStreamsReplyDeltas(t *testing.T) {
	r, buf := newTestRenderer(t)

	r.Render(session.Change{
		Type:    session.ChangeMessageAdded,
		Message: &session.ConversationMessage{ID: "m1", Kind: session.KindThinking, Content: "Analyzing"},
	})
	r.Render(reply("m1", "Hel"))
	r.Render(reply("m1", "Hello"))
	r.Render(reply("m1", "Hello there"))
	r.Render(session.Change{Type: session.ChangeStreaming})

	assert.Equal(t, "… Analyzing\nagent> Hello there\n", buf.String())
}

func TestRendererToolLifecycle(t *testing.T) {
	r, buf := newTestRenderer(t)
	risk := 82.0

	r.Render(session.Change{
		Type: session.ChangeMessageAdded,
		Message: &session.ConversationMessage{
			ID: "t1", Kind: session.KindToolCall, Content: "Running deepfake_detector",
			Metadata: &session.MessageMetadata{ToolName: "deepfake_detector", Status: session.ToolExecuting},
		},
	})
	r.Render(session.Change{
		Type: session.ChangeMessageUpdated,
		Message: &session.ConversationMessage{
			ID: "t1", Kind: session.KindToolCall,
			Metadata: &session.MessageMetadata{ToolName: "deepfake_detector", Status: session.ToolSuccess, RiskScore: &risk},
		},
	})

	assert.Equal(t, "⚙  Running deepfake_detector\n✔  deepfake_detector done (risk 82)\n", buf.String())
}

func TestRendererInterruptsStreamForOtherOutput(t *testing.T) {
	r, buf := newTestRenderer(t)

	r.Render(reply("m1", "partial"))
	r.Render(session.Change{Type: session.ChangeConnectionChanged, Connection: session.StateDisconnected})

	assert.Equal(t, "agent> partial\n○ disconnected\n", buf.String())
}

func TestRendererResults(t *testing.T) {
	r, buf := newTestRenderer(t)

	r.Results(nil)
	assert.Contains(t, buf.String(), "No analysis results yet.")

	buf.Reset()
	r.Results([]service.FileResults{{
		FileKey:  "f-1",
		FileName: "photo.jpg",
		Results: []service.ToolResultView{{
			ToolType: "deepfake_detector",
			Unified: adapter.UnifiedAnalysisResult{
				RiskScore:   82,
				AIDetection: adapter.AIDetection{Score: 82, Type: adapter.DetectionDeepfake, Confidence: 82},
			},
		}},
	}})
	out := buf.String()
	assert.Contains(t, out, "== photo.jpg ==")
	assert.Contains(t, out, "risk  82.0")
	assert.Contains(t, out, "ai deepfake 82.0")
}
