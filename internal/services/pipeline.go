package services

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"whatsapp-hubspot-bridge/internal/normalizer"
)

// EventPublisher mirrors processed messages onto an external queue. A nil
// publisher disables mirroring.
type EventPublisher interface {
	Publish(eventType string, payload any)
}

// dedupeTTL is how long processed message IDs are remembered to absorb
// transport redeliveries.
const dedupeTTL = 10 * time.Minute

// MessagePipeline glues the per-message flow together: normalize the raw
// payload, resolve the counterpart phone number to a CRM contact, and log
// the message as a note. Failures affect only the message at hand.
type MessagePipeline struct {
	resolver  *ContactResolver
	writer    *NoteWriter
	publisher EventPublisher
	seen      *cache.Cache
}

// NewMessagePipeline creates a new MessagePipeline. publisher may be nil.
func NewMessagePipeline(resolver *ContactResolver, writer *NoteWriter, publisher EventPublisher) (*MessagePipeline, error) {
	if resolver == nil {
		return nil, fmt.Errorf("contact resolver cannot be nil")
	}
	if writer == nil {
		return nil, fmt.Errorf("note writer cannot be nil")
	}
	return &MessagePipeline{
		resolver:  resolver,
		writer:    writer,
		publisher: publisher,
		seen:      cache.New(dedupeTTL, 2*dedupeTTL),
	}, nil
}

// HandleMessage processes one live message event. Group chats are skipped,
// redelivered message IDs are dropped, and every error is logged without
// interrupting the listener.
func (p *MessagePipeline) HandleMessage(ctx context.Context, evt *events.Message) {
	if evt == nil || evt.Message == nil {
		return
	}

	chat := evt.Info.Chat
	phone := chat.User

	if evt.Info.IsGroup || chat.Server == types.GroupServer {
		log.Debug().Str("chat", chat.String()).Msg("Skipping group message")
		return
	}
	if chat.Server == types.BroadcastServer {
		log.Debug().Str("chat", chat.String()).Msg("Skipping broadcast message")
		return
	}

	if err := p.seen.Add(evt.Info.ID, struct{}{}, cache.DefaultExpiration); err != nil {
		log.Debug().Str("messageID", evt.Info.ID).Msg("Skipping redelivered message")
		return
	}

	msg := normalizer.Normalize(evt.Message)

	log.Info().
		Str("phone", phone).
		Str("messageType", string(msg.Type)).
		Str("content", msg.Text).
		Bool("fromMe", evt.Info.IsFromMe).
		Msg("Message received")

	contactID, err := p.resolver.FindContactByPhone(ctx, phone)
	if err != nil {
		log.Error().Err(err).Str("phone", phone).Msg("Error finding contact")
		return
	}

	noteErr := p.writer.WriteNote(ctx, contactID, msg, phone, evt.Info.IsFromMe)
	if noteErr != nil {
		log.Error().Err(noteErr).Str("phone", phone).Msg("Error creating note")
	}

	if p.publisher != nil {
		p.publisher.Publish("message.logged", map[string]any{
			"phone":     phone,
			"fromMe":    evt.Info.IsFromMe,
			"messageId": evt.Info.ID,
			"message":   msg,
			"contactId": contactID,
			"logged":    noteErr == nil && contactID != "",
		})
	}
}
