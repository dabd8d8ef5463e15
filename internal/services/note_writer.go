package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-hubspot-bridge/internal/hubspot"
	"whatsapp-hubspot-bridge/internal/normalizer"
)

// NoteWriter formats normalized messages into CRM notes and submits them.
type NoteWriter struct {
	hubspot *hubspot.Client
}

// NewNoteWriter creates a new NoteWriter.
func NewNoteWriter(hsClient *hubspot.Client) (*NoteWriter, error) {
	if hsClient == nil {
		return nil, fmt.Errorf("HubSpot client cannot be nil")
	}
	return &NoteWriter{hubspot: hsClient}, nil
}

// WriteNote logs a message as a note on the given contact. An empty contact
// ID is a logged skip, not an error: the message is considered handled.
func (w *NoteWriter) WriteNote(ctx context.Context, contactID string, msg normalizer.Message, phoneNumber string, isOutgoing bool) error {
	if contactID == "" {
		log.Info().Str("phone", phoneNumber).Msg("Contact not found, skipping note")
		return nil
	}

	body := BuildNoteBody(msg, phoneNumber, isOutgoing)
	note, err := w.hubspot.CreateNote(ctx, contactID, body, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create note for contact %s: %w", contactID, err)
	}

	log.Info().
		Str("noteID", note.ID).
		Str("contactID", contactID).
		Str("messageType", string(msg.Type)).
		Msg("Note added to contact")
	return nil
}

// BuildNoteBody renders the note text: a directional header, the phone
// number and message type, the message text, then an Additional Information
// block for whichever side-channels are present (in a fixed order) and a
// Links found block when the text contains URLs.
func BuildNoteBody(msg normalizer.Message, phoneNumber string, isOutgoing bool) string {
	direction := "WhatsApp message received"
	if isOutgoing {
		direction = "WhatsApp message sent"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nPhone: %s\nMessage Type: %s\n\n", direction, phoneNumber, msg.Type)
	fmt.Fprintf(&b, "Message: %s\n", msg.Text)

	if len(msg.AdditionalInfo) > 0 {
		var extra strings.Builder
		if quoted, ok := msg.AdditionalInfo["quotedMessage"].(string); ok {
			fmt.Fprintf(&extra, "• Replying to: %q\n", quoted)
		}
		if mentions, ok := msg.AdditionalInfo["mentions"].([]string); ok && len(mentions) > 0 {
			fmt.Fprintf(&extra, "• Mentions: %s\n", strings.Join(mentions, ", "))
		}
		if coords, ok := msg.AdditionalInfo["coordinates"].(map[string]float64); ok {
			fmt.Fprintf(&extra, "• Location: %v, %v\n", coords["latitude"], coords["longitude"])
		}
		if fileName, ok := msg.AdditionalInfo["fileName"].(string); ok {
			fmt.Fprintf(&extra, "• File: %s\n", fileName)
		}
		if mimeType, ok := msg.AdditionalInfo["mimeType"].(string); ok {
			fmt.Fprintf(&extra, "• File Type: %s\n", mimeType)
		}
		if duration, ok := msg.AdditionalInfo["duration"].(uint32); ok {
			fmt.Fprintf(&extra, "• Duration: %d seconds\n", duration)
		}
		if reaction, ok := msg.AdditionalInfo["reactionEmoji"].(string); ok {
			fmt.Fprintf(&extra, "• Reaction: %s\n", reaction)
		}
		if extra.Len() > 0 {
			b.WriteString("\nAdditional Information:\n")
			b.WriteString(extra.String())
		}
	}

	if links := normalizer.ExtractLinks(msg.Text); len(links) > 0 {
		b.WriteString("\nLinks found:\n")
		for _, link := range links {
			fmt.Fprintf(&b, "• %s\n", link)
		}
	}

	return b.String()
}
