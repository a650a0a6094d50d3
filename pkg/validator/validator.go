package validator

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

// MaxContentLength mirrors the stored limit on message text.
const MaxContentLength = 2000

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// Error joins the messages ordered by field name.
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, field := range slices.Sorted(maps.Keys(v)) {
		parts = append(parts, v[field])
	}
	return strings.Join(parts, "; ")
}

type Attachment struct {
	Name string
	URL  string
	Size int64
}

// ValidateSendMessage checks a user-submitted message. recipientID may be
// "unknown" only when the message is tied to an order.
func ValidateSendMessage(recipientID, content, messageType string, hasOrder bool, attachments []Attachment) ValidationErrors {
	errs := make(ValidationErrors)

	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" && !hasOrder {
		errs.Add("recipient_id", "Recipient is required")
	} else if recipientID == "unknown" && !hasOrder {
		errs.Add("recipient_id", "Recipient can only be unknown for order conversations")
	}

	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		errs.Add("content", "Message content or attachments are required")
	} else if utf8.RuneCountInString(content) > MaxContentLength {
		errs.Add("content", fmt.Sprintf("Message cannot exceed %d characters", MaxContentLength))
	}

	switch messageType {
	case "", "text", "file", "image":
	default:
		errs.Add("message_type", "Message type must be text, file, or image")
	}

	for i, a := range attachments {
		if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.URL) == "" {
			errs.Add("attachments", fmt.Sprintf("Attachment %d needs a name and url", i+1))
			break
		}
		if a.Size < 0 {
			errs.Add("attachments", fmt.Sprintf("Attachment %d has an invalid size", i+1))
			break
		}
	}

	return errs
}

func ValidateMarkRead(conversationID string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(conversationID) == "" {
		errs.Add("conversation_id", "Conversation ID is required")
	}

	return errs
}
