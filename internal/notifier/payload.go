package notifier

import (
	"encoding/json"
	"strings"
	"time"

	"blinkbrain/internal/domain"
)

const (
	DefaultTitle = "Reminder"
	DefaultBody  = "Your reminder is due now."
)

// Payload is the denormalized snapshot attached to a scheduled notification
// so that delivery does not need to read the note again.
type Payload struct {
	ReminderID       string              `json:"reminderId"`
	NoteID           string              `json:"noteId"`
	Title            string              `json:"title"`
	Body             string              `json:"body"`
	CountdownSeconds int                 `json:"countdownSeconds"`
	Attachments      []domain.Attachment `json:"attachments"`
	CodeBlocks       []domain.CodeBlock  `json:"codeBlocks"`
	FireAt           time.Time           `json:"fireAt"`
}

// BuildPayload assembles the payload for rem. A missing note or blank
// fields fall back to the default title and body.
func BuildPayload(rem domain.Reminder, note domain.Note, found bool, fireAt time.Time) Payload {
	p := Payload{
		ReminderID:       rem.ID,
		NoteID:           rem.NoteID,
		Title:            DefaultTitle,
		Body:             DefaultBody,
		CountdownSeconds: rem.CountdownSeconds,
		Attachments:      []domain.Attachment{},
		CodeBlocks:       []domain.CodeBlock{},
		FireAt:           fireAt,
	}
	if !found {
		return p
	}
	if t := strings.TrimSpace(note.Title); t != "" {
		p.Title = t
	}
	if b := strings.TrimSpace(note.Content); b != "" {
		p.Body = b
	}
	if len(note.Attachments) > 0 {
		p.Attachments = append(p.Attachments, note.Attachments...)
	}
	if len(note.CodeBlocks) > 0 {
		p.CodeBlocks = append(p.CodeBlocks, note.CodeBlocks...)
	}
	return p
}

// Encode returns the JSON form handed to the dispatcher.
func (p Payload) Encode() ([]byte, error) { return json.Marshal(p) }

// DecodePayload parses a payload produced by Encode.
func DecodePayload(b []byte) (Payload, error) {
	var p Payload
	err := json.Unmarshal(b, &p)
	return p, err
}
