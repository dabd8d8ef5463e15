package normalizer

import (
	"fmt"
	"sort"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Kind identifies the shape of an incoming WhatsApp message.
type Kind string

const (
	KindText          Kind = "text"
	KindExtendedText  Kind = "extended_text"
	KindImage         Kind = "image"
	KindVideo         Kind = "video"
	KindAudio         Kind = "audio"
	KindDocument      Kind = "document"
	KindSticker       Kind = "sticker"
	KindLocation      Kind = "location"
	KindContact       Kind = "contact"
	KindContactsArray Kind = "contacts_array"
	KindLiveLocation  Kind = "live_location"
	KindButtons       Kind = "buttons"
	KindList          Kind = "list"
	KindTemplate      Kind = "template"
	KindReaction      Kind = "reaction"
	KindUnsupported   Kind = "unsupported"
	KindError         Kind = "error"
)

// maxQuoteDepth bounds recursive normalization of quoted messages. A quote
// chain deeper than this is truncated instead of followed.
const maxQuoteDepth = 5

// Message is the canonical record produced for every incoming raw message.
// Text is always a non-empty display string for any recognized shape; shapes
// without literal text get a bracketed placeholder.
type Message struct {
	Text           string         `json:"text"`
	Type           Kind           `json:"type"`
	AdditionalInfo map[string]any `json:"additionalInfo"`
}

// Normalize converts a raw WhatsApp payload into a Message. It never fails:
// malformed input produces a KindError record carrying the error description
// under AdditionalInfo["error"].
func Normalize(raw *waE2E.Message) Message {
	return normalize(raw, 0)
}

func normalize(raw *waE2E.Message, depth int) (out Message) {
	defer func() {
		if r := recover(); r != nil {
			out = Message{
				Text:           "[Error processing message]",
				Type:           KindError,
				AdditionalInfo: map[string]any{"error": fmt.Sprint(r)},
			}
		}
	}()

	info := map[string]any{}
	var text string
	var kind Kind

	switch {
	case raw == nil:
		text = "[Unsupported Message Type]"
		kind = KindUnsupported
		info["messageKeys"] = []string{}

	case raw.GetConversation() != "":
		text = raw.GetConversation()
		kind = KindText

	case raw.GetExtendedTextMessage() != nil:
		ext := raw.GetExtendedTextMessage()
		text = ext.GetText()
		kind = KindExtendedText
		if ctx := ext.GetContextInfo(); ctx != nil {
			if quoted := ctx.GetQuotedMessage(); quoted != nil && depth < maxQuoteDepth {
				info["quotedMessage"] = normalize(quoted, depth+1).Text
			}
			if mentions := ctx.GetMentionedJID(); len(mentions) > 0 {
				info["mentions"] = mentions
			}
		}

	case raw.GetImageMessage() != nil:
		img := raw.GetImageMessage()
		text = img.GetCaption()
		if text == "" {
			text = "[Image]"
		}
		kind = KindImage
		if mime := img.GetMimetype(); mime != "" {
			info["mimeType"] = mime
		}

	case raw.GetVideoMessage() != nil:
		vid := raw.GetVideoMessage()
		text = vid.GetCaption()
		if text == "" {
			text = "[Video]"
		}
		kind = KindVideo
		if mime := vid.GetMimetype(); mime != "" {
			info["mimeType"] = mime
		}

	case raw.GetAudioMessage() != nil:
		aud := raw.GetAudioMessage()
		text = "[Audio Message]"
		kind = KindAudio
		if secs := aud.GetSeconds(); secs > 0 {
			info["duration"] = secs
		}
		if mime := aud.GetMimetype(); mime != "" {
			info["mimeType"] = mime
		}

	case raw.GetDocumentMessage() != nil:
		doc := raw.GetDocumentMessage()
		name := doc.GetFileName()
		if name == "" {
			name = "Unknown"
		}
		text = fmt.Sprintf("[Document: %s]", name)
		kind = KindDocument
		if fn := doc.GetFileName(); fn != "" {
			info["fileName"] = fn
		}
		if mime := doc.GetMimetype(); mime != "" {
			info["mimeType"] = mime
		}

	case raw.GetStickerMessage() != nil:
		text = "[Sticker]"
		kind = KindSticker

	case raw.GetLocationMessage() != nil:
		loc := raw.GetLocationMessage()
		lat, lng := loc.GetDegreesLatitude(), loc.GetDegreesLongitude()
		text = fmt.Sprintf("[Location: %v, %v]", lat, lng)
		kind = KindLocation
		info["coordinates"] = map[string]float64{"latitude": lat, "longitude": lng}

	case raw.GetContactMessage() != nil:
		contact := raw.GetContactMessage()
		name := contact.GetDisplayName()
		if name == "" {
			name = "Unknown"
		}
		text = fmt.Sprintf("[Contact: %s]", name)
		kind = KindContact
		if vcard := contact.GetVcard(); vcard != "" {
			info["vcard"] = vcard
		}

	case raw.GetContactsArrayMessage() != nil:
		contacts := raw.GetContactsArrayMessage().GetContacts()
		text = fmt.Sprintf("[Contacts: %d contact(s)]", len(contacts))
		kind = KindContactsArray
		info["contactCount"] = len(contacts)

	case raw.GetLiveLocationMessage() != nil:
		loc := raw.GetLiveLocationMessage()
		lat, lng := loc.GetDegreesLatitude(), loc.GetDegreesLongitude()
		text = fmt.Sprintf("[Live Location: %v, %v]", lat, lng)
		kind = KindLiveLocation
		info["coordinates"] = map[string]float64{"latitude": lat, "longitude": lng}

	case raw.GetButtonsMessage() != nil:
		btns := raw.GetButtonsMessage()
		text = btns.GetContentText()
		if text == "" {
			text = "[Interactive Buttons Message]"
		}
		kind = KindButtons
		var labels []string
		for _, b := range btns.GetButtons() {
			if label := b.GetButtonText().GetDisplayText(); label != "" {
				labels = append(labels, label)
			}
		}
		if len(labels) > 0 {
			info["buttons"] = labels
		}

	case raw.GetListMessage() != nil:
		list := raw.GetListMessage()
		text = list.GetDescription()
		if text == "" {
			text = "[List Message]"
		}
		kind = KindList
		if title := list.GetTitle(); title != "" {
			info["title"] = title
		}

	case raw.GetTemplateMessage() != nil:
		text = raw.GetTemplateMessage().GetHydratedTemplate().GetHydratedContentText()
		if text == "" {
			text = "[Template Message]"
		}
		kind = KindTemplate

	case raw.GetReactionMessage() != nil:
		glyph := raw.GetReactionMessage().GetText()
		text = fmt.Sprintf("[Reaction: %s]", glyph)
		kind = KindReaction
		info["reactionEmoji"] = glyph

	default:
		text, kind = fallbackScan(raw, info)
	}

	return Message{
		Text:           sanitizeText(text),
		Type:           kind,
		AdditionalInfo: info,
	}
}

// fallbackScan walks the populated fields of an unrecognized payload looking
// for a nested message exposing a text or caption string. When nothing
// usable is found the record becomes unsupported and the populated top-level
// field names are kept as a diagnostic.
func fallbackScan(raw *waE2E.Message, info map[string]any) (string, Kind) {
	m := raw.ProtoReflect()

	var fields []protoreflect.FieldDescriptor
	m.Range(func(fd protoreflect.FieldDescriptor, _ protoreflect.Value) bool {
		fields = append(fields, fd)
		return true
	})
	sort.Slice(fields, func(i, j int) bool { return fields[i].Number() < fields[j].Number() })

	keys := make([]string, 0, len(fields))
	for _, fd := range fields {
		keys = append(keys, fd.JSONName())
	}

	for _, fd := range fields {
		if fd.Kind() != protoreflect.MessageKind || fd.IsList() || fd.IsMap() {
			continue
		}
		sub := m.Get(fd).Message()
		for _, name := range []string{"text", "caption"} {
			sf := sub.Descriptor().Fields().ByName(protoreflect.Name(name))
			if sf == nil || sf.Kind() != protoreflect.StringKind || sf.IsList() {
				continue
			}
			if s := sub.Get(sf).String(); s != "" {
				return s, Kind(fd.JSONName())
			}
		}
	}

	info["messageKeys"] = keys
	return "[Unsupported Message Type]", KindUnsupported
}

// sanitizeText replaces invalid UTF-8 sequences with the replacement rune so
// downstream note bodies are always valid UTF-8.
func sanitizeText(text string) string {
	return strings.ToValidUTF8(text, "�")
}
