package pipeline

// messageLog keeps the first MaxWarnings messages and counts the rest.
type messageLog struct {
	items   []string
	dropped int
}

func (l *messageLog) Add(msg string) {
	if len(l.items) < MaxWarnings {
		l.items = append(l.items, msg)
		return
	}
	l.dropped++
}

// Len counts every message added, kept or not.
func (l *messageLog) Len() int { return len(l.items) + l.dropped }

// List returns the kept messages, followed by SuppressedMarker when any
// were dropped. It never returns nil.
func (l *messageLog) List() []string {
	out := make([]string, len(l.items), len(l.items)+1)
	copy(out, l.items)
	if l.dropped > 0 {
		out = append(out, SuppressedMarker)
	}
	return out
}
