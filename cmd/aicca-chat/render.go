package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"aicca-realtime/internal/service"
	"aicca-realtime/internal/session"
	"aicca-realtime/internal/transfer"

	"github.com/fatih/color"
)

var (
	agentColor   = color.New(color.FgCyan)
	thinkColor   = color.New(color.FgMagenta)
	toolColor    = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	infoColor    = color.New(color.FgBlue)
)

// renderer prints session changes as a live transcript. Streamed replies are
// written incrementally, so it remembers how much of each message is on screen.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]int
	open    string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, printed: make(map[string]int)}
}

func (r *renderer) Render(change session.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch change.Type {
	case session.ChangeMessageAdded, session.ChangeMessageUpdated:
		if change.Message != nil {
			r.renderMessage(*change.Message, change.Type == session.ChangeMessageAdded)
		}
	case session.ChangeStreaming:
		if change.StreamingID == "" {
			r.closeStream()
		}
	case session.ChangeResultStored:
		if change.Result != nil {
			r.line(infoColor, "📄 %s result stored for %s", change.Result.ToolType, change.FileKey)
		}
	case session.ChangeFileMapped:
		r.line(infoColor, "📎 %s -> %s", change.FileName, change.FileID)
	case session.ChangeFilesSelected:
		r.line(infoColor, "Selected: %s", strings.Join(change.Files, ", "))
	case session.ChangeConnectionChanged:
		r.renderConnection(change.Connection)
	case session.ChangeReset:
		r.printed = make(map[string]int)
		r.open = ""
		r.line(infoColor, "Session reset")
	}
}

func (r *renderer) renderMessage(msg session.ConversationMessage, added bool) {
	switch msg.Kind {
	case session.KindUser:
		// the prompt already shows what the user typed
	case session.KindThinking:
		if added {
			r.line(thinkColor, "… %s", msg.Content)
		}
	case session.KindReply:
		r.renderReply(msg)
	case session.KindToolCall:
		r.renderTool(msg, added)
	case session.KindAlert:
		c := infoColor
		if msg.Metadata != nil {
			switch msg.Metadata.AlertLevel {
			case session.AlertWarning:
				c = toolColor
			case session.AlertError:
				c = errorColor
			}
		}
		r.line(c, "! %s", msg.Content)
	}
}

func (r *renderer) renderReply(msg session.ConversationMessage) {
	done, seen := r.printed[msg.ID]
	if !seen {
		r.closeStream()
		agentColor.Fprint(r.out, "agent> ")
		r.open = msg.ID
	}
	if done > len(msg.Content) {
		done = 0
	}
	if delta := msg.Content[done:]; delta != "" {
		fmt.Fprint(r.out, delta)
	}
	r.printed[msg.ID] = len(msg.Content)
}

func (r *renderer) renderTool(msg session.ConversationMessage, added bool) {
	md := msg.Metadata
	if md == nil {
		return
	}
	switch {
	case added:
		r.line(toolColor, "⚙  %s", msg.Content)
	case md.Status == session.ToolSuccess:
		if md.RiskScore != nil {
			r.line(successColor, "✔  %s done (risk %.0f)", md.ToolName, *md.RiskScore)
		} else {
			r.line(successColor, "✔  %s done", md.ToolName)
		}
	case md.Status == session.ToolError:
		r.line(errorColor, "✖  %s failed: %s", md.ToolName, msg.Content)
	}
}

func (r *renderer) renderConnection(state session.ConnectionState) {
	switch state {
	case session.StateConnected:
		r.line(successColor, "● connected")
	case session.StateConnecting:
		r.line(toolColor, "○ connecting...")
	case session.StateError:
		r.line(errorColor, "● connection error")
	default:
		r.line(errorColor, "○ %s", state)
	}
}

func (r *renderer) Progress(name string, p transfer.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.line(infoColor, "⇪ %s %.0f%% (%d/%d)", name, p.Progress, p.ReceivedChunks, p.TotalChunks)
}

func (r *renderer) Results(files []service.FileResults) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(files) == 0 {
		r.line(infoColor, "No analysis results yet.")
		return
	}
	for _, f := range files {
		name := f.FileName
		if name == "" {
			name = f.FileKey
		}
		r.line(agentColor, "== %s ==", name)
		for _, res := range f.Results {
			u := res.Unified
			c := successColor
			if u.RiskScore >= 50 {
				c = errorColor
			}
			r.line(c, "  %-20s risk %5.1f  ai %s %.1f (confidence %.1f)",
				res.ToolType, u.RiskScore, u.AIDetection.Type, u.AIDetection.Score, u.AIDetection.Confidence)
			if v := u.C2PAValidation; v != nil {
				r.line(infoColor, "  %-20s c2pa valid=%t credential=%t %s", "", v.Valid, v.HasCredential, v.TrustStatus)
			}
			if m := u.Metadata; m != nil && m.Anomalies > 0 {
				r.line(toolColor, "  %-20s %d metadata anomalies", "", m.Anomalies)
			}
		}
	}
}

func (r *renderer) Errorf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.line(errorColor, format, args...)
}

func (r *renderer) Infof(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.line(infoColor, format, args...)
}

// closeStream ends the reply line currently being streamed, if any.
func (r *renderer) closeStream() {
	if r.open != "" {
		fmt.Fprintln(r.out)
		r.open = ""
	}
}

func (r *renderer) line(c *color.Color, format string, args ...interface{}) {
	r.closeStream()
	c.Fprintf(r.out, format+"\n", args...)
}
