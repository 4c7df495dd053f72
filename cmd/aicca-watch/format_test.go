package main

import (
	"testing"

	"aicca-realtime/pkg/events"

	"github.com/stretchr/testify/assert"
)

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    map[string]interface{}
		want    string
		ok      bool
	}{
		{
			name:    "tool call",
			subject: "aicca.ws_c1.SESSION_MESSAGE_UPDATED",
			data: map[string]interface{}{
				"type": "message_updated",
				"message": map[string]interface{}{
					"id": "t1", "kind": "tool-call", "content": "Running c2pa",
					"metadata": map[string]interface{}{"tool_name": "c2pa_verify", "status": "success"},
				},
			},
			want: "ws_c1 message_updated    tool-call Running c2pa [c2pa_verify success]",
			ok:   true,
		},
		{
			name:    "file mapped",
			subject: "aicca.ws_c1.SESSION_FILE_MAPPED",
			data:    map[string]interface{}{"type": "file_mapped", "file_name": "a.png", "file_id": "f-1"},
			want:    "ws_c1 file_mapped        a.png -> f-1",
			ok:      true,
		},
		{
			name:    "stream closed",
			subject: "aicca.ws_c1.SESSION_STREAMING_CHANGED",
			data:    map[string]interface{}{"type": "streaming_changed"},
			want:    "ws_c1 streaming_changed  stream closed",
			ok:      true,
		},
		{
			name:    "foreign event",
			subject: "aicca.ws_c1.USER_CREATED",
			data:    map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatEvent(events.BaseEvent{Type: tt.subject, Data: tt.data})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
	assert.Equal(t, "a b", truncate("a\nb", 10))
}
