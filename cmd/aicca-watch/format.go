package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"aicca-realtime/internal/session"
	"aicca-realtime/pkg/events"
)

// formatEvent renders one bus event as "<session> <change> <summary>".
// Events that are not session changes are rejected.
func formatEvent(event events.Event) (string, bool) {
	kind, ok := events.ChangeFromEventType(event.EventType())
	if !ok {
		return "", false
	}

	var change session.Change
	data, err := json.Marshal(event.Payload())
	if err != nil || json.Unmarshal(data, &change) != nil {
		return "", false
	}

	return fmt.Sprintf("%s %-18s %s", sessionOf(event.EventType()), kind, summarize(change)), true
}

// sessionOf extracts the session id from aicca.<session>.<EVENT>.
func sessionOf(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 {
		return "-"
	}
	return strings.Join(parts[1:len(parts)-1], ".")
}

func summarize(c session.Change) string {
	switch c.Type {
	case session.ChangeMessageAdded, session.ChangeMessageUpdated:
		if c.Message == nil {
			return ""
		}
		s := fmt.Sprintf("%s %s", c.Message.Kind, truncate(c.Message.Content, 60))
		if md := c.Message.Metadata; md != nil && md.ToolName != "" {
			s += fmt.Sprintf(" [%s %s]", md.ToolName, md.Status)
		}
		return s
	case session.ChangeStreaming:
		if c.StreamingID == "" {
			return "stream closed"
		}
		return "streaming " + c.StreamingID
	case session.ChangeResultStored:
		if c.Result == nil {
			return c.FileKey
		}
		return fmt.Sprintf("%s -> %s", c.Result.ToolType, c.FileKey)
	case session.ChangeFileMapped:
		return fmt.Sprintf("%s -> %s", c.FileName, c.FileID)
	case session.ChangeFilesSelected:
		return strings.Join(c.Files, ", ")
	case session.ChangeConnectionChanged:
		return string(c.Connection)
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
