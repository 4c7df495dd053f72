package events

import "testing"

func TestSessionEventTypeRoundTrip(t *testing.T) {
	tests := []struct {
		input     string
		wantEvent string
	}{
		{"message_added", "SESSION_MESSAGE_ADDED"},
		{"connection_changed", "SESSION_CONNECTION_CHANGED"},
		{"reset", "SESSION_RESET"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := SessionEventType(tt.input)
			if got != tt.wantEvent {
				t.Fatalf("SessionEventType(%q) = %q, want %q", tt.input, got, tt.wantEvent)
			}
			back, ok := ChangeFromEventType("aicca.ws_client_1." + got)
			if !ok || back != tt.input {
				t.Fatalf("ChangeFromEventType(%q) = %q, %v", got, back, ok)
			}
		})
	}
}

func TestChangeFromEventTypeRejectsForeignCodes(t *testing.T) {
	if _, ok := ChangeFromEventType("events.USER_LOGIN"); ok {
		t.Fatal("expected USER_LOGIN to be rejected")
	}
}
