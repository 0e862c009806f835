package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attachment describes a file that travels alongside a message.
type Attachment struct {
	URL         string `json:"url"`
	MimeType    string `json:"mimeType"`
	DisplayName string `json:"displayName"`
}

// IsEmpty reports whether the descriptor lacks a location or a type.
func (a Attachment) IsEmpty() bool {
	return strings.TrimSpace(a.URL) == "" || strings.TrimSpace(a.MimeType) == ""
}

// Message is one immutable entry in the conversation log.
type Message struct {
	ID              string      `json:"id"`
	Text            string      `json:"text"`
	IsFromUser      bool        `json:"isFromUser"`
	TimestampMillis int64       `json:"timestampMillis"`
	Attachment      *Attachment `json:"attachment,omitempty"`
}

// Time converts the stored millisecond timestamp.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.TimestampMillis)
}

// NewUserMessage builds a user-authored text message.
func NewUserMessage(text string, now time.Time) Message {
	return Message{
		ID:              uuid.NewString(),
		Text:            text,
		IsFromUser:      true,
		TimestampMillis: now.UnixMilli(),
	}
}

// NewAssistantMessage builds a message authored by the remote assistant or by
// the client on the assistant's behalf (action confirmations, upload failures).
func NewAssistantMessage(text string, now time.Time) Message {
	return Message{
		ID:              uuid.NewString(),
		Text:            text,
		IsFromUser:      false,
		TimestampMillis: now.UnixMilli(),
	}
}

// NewAttachmentMessage builds the local placeholder written before an upload starts.
func NewAttachmentMessage(att Attachment, now time.Time) Message {
	a := att
	return Message{
		ID:              uuid.NewString(),
		IsFromUser:      true,
		TimestampMillis: now.UnixMilli(),
		Attachment:      &a,
	}
}
