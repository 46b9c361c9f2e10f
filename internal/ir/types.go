package ir

// Event kinds recorded in the journal.
const (
	KindCreated  = "created"
	KindChanging = "changing"
	KindDeleting = "deleting"
)

// Entry is one committed transaction.
type Entry struct {
	TxID     string        `json:"tx_id"`
	Seq      int64         `json:"seq"`      // Logical clock, never wall time
	Document string        `json:"document"` // Backing file path
	Events   []EventRecord `json:"events"`
	Hash     string        `json:"hash"`
}

// EventRecord describes one committed event.
//
// Payload layout by kind:
//   - created:  {"attrs": {name: value}, "text": value}
//   - changing: {"attrs": {name: {"old": v, "new": v}}, "text": {"old": v, "new": v},
//     "added": [tag...], "removed": [tag...]}
//   - deleting: {}
//
// A missing "old" or "new" key means the attribute was absent.
type EventRecord struct {
	Kind     string   `json:"kind"`
	Tag      string   `json:"tag"`
	RecordID string   `json:"record_id,omitempty"`
	Payload  IRObject `json:"payload"`
}

func (e Entry) toIRObject() IRObject {
	events := make(IRArray, len(e.Events))
	for i, ev := range e.Events {
		payload := ev.Payload
		if payload == nil {
			payload = IRObject{}
		}
		events[i] = IRObject{
			"kind":      IRString(ev.Kind),
			"tag":       IRString(ev.Tag),
			"record_id": IRString(ev.RecordID),
			"payload":   payload,
		}
	}
	return IRObject{
		"tx_id":    IRString(e.TxID),
		"seq":      IRInt(e.Seq),
		"document": IRString(e.Document),
		"events":   events,
	}
}
