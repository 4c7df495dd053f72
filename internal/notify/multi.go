package notify

import "aicca-realtime/internal/session"

// Multi delivers each change to every notifier in order.
type Multi []session.Notifier

func (m Multi) Notify(change session.Change) {
	for _, n := range m {
		if n != nil {
			n.Notify(change)
		}
	}
}
