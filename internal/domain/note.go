package domain

import "time"

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
)

type Attachment struct {
	ID       string         `json:"id"`
	Type     AttachmentType `json:"type"`
	URI      string         `json:"uri"`
	FileName string         `json:"fileName,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	Size     int64          `json:"size,omitempty"`
	AddedAt  time.Time      `json:"addedAt"`
}

type CodeBlock struct {
	ID       string    `json:"id"`
	Language string    `json:"language"`
	Code     string    `json:"code"`
	AddedAt  time.Time `json:"addedAt"`
}

type Note struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Pinned      bool         `json:"isPinned"`
	Deleted     bool         `json:"isDeleted"`
	DeletedAt   *time.Time   `json:"deletedAt,omitempty"`
	Attachments []Attachment `json:"attachments"`
	CodeBlocks  []CodeBlock  `json:"codeBlocks"`
	ReminderID  string       `json:"reminderId,omitempty"`
}

// Clone returns a deep copy.
func (n Note) Clone() Note {
	cp := n
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		cp.DeletedAt = &t
	}
	if n.Attachments != nil {
		cp.Attachments = append(make([]Attachment, 0, len(n.Attachments)), n.Attachments...)
	}
	if n.CodeBlocks != nil {
		cp.CodeBlocks = append(make([]CodeBlock, 0, len(n.CodeBlocks)), n.CodeBlocks...)
	}
	return cp
}
