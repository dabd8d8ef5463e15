package normalizer

import (
	"strings"
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestNormalizeKnownVariants(t *testing.T) {
	tests := []struct {
		name     string
		raw      *waE2E.Message
		wantType Kind
		wantText string
	}{
		{
			name:     "conversation",
			raw:      &waE2E.Message{Conversation: proto.String("hello there")},
			wantType: KindText,
			wantText: "hello there",
		},
		{
			name: "extended text",
			raw: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String("check this out"),
			}},
			wantType: KindExtendedText,
			wantText: "check this out",
		},
		{
			name: "image with caption",
			raw: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
				Caption:  proto.String("sunset"),
				Mimetype: proto.String("image/jpeg"),
			}},
			wantType: KindImage,
			wantText: "sunset",
		},
		{
			name:     "image without caption",
			raw:      &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
			wantType: KindImage,
			wantText: "[Image]",
		},
		{
			name:     "video without caption",
			raw:      &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}},
			wantType: KindVideo,
			wantText: "[Video]",
		},
		{
			name: "audio",
			raw: &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
				Seconds:  proto.Uint32(12),
				Mimetype: proto.String("audio/ogg"),
			}},
			wantType: KindAudio,
			wantText: "[Audio Message]",
		},
		{
			name: "document",
			raw: &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
				FileName: proto.String("report.pdf"),
			}},
			wantType: KindDocument,
			wantText: "[Document: report.pdf]",
		},
		{
			name:     "document without name",
			raw:      &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}},
			wantType: KindDocument,
			wantText: "[Document: Unknown]",
		},
		{
			name:     "sticker",
			raw:      &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}},
			wantType: KindSticker,
			wantText: "[Sticker]",
		},
		{
			name: "location",
			raw: &waE2E.Message{LocationMessage: &waE2E.LocationMessage{
				DegreesLatitude:  proto.Float64(28.6),
				DegreesLongitude: proto.Float64(77.2),
			}},
			wantType: KindLocation,
			wantText: "[Location: 28.6, 77.2]",
		},
		{
			name: "contact",
			raw: &waE2E.Message{ContactMessage: &waE2E.ContactMessage{
				DisplayName: proto.String("Asha"),
				Vcard:       proto.String("BEGIN:VCARD"),
			}},
			wantType: KindContact,
			wantText: "[Contact: Asha]",
		},
		{
			name: "contacts array",
			raw: &waE2E.Message{ContactsArrayMessage: &waE2E.ContactsArrayMessage{
				Contacts: []*waE2E.ContactMessage{{}, {}},
			}},
			wantType: KindContactsArray,
			wantText: "[Contacts: 2 contact(s)]",
		},
		{
			name: "live location",
			raw: &waE2E.Message{LiveLocationMessage: &waE2E.LiveLocationMessage{
				DegreesLatitude:  proto.Float64(1.5),
				DegreesLongitude: proto.Float64(2.5),
			}},
			wantType: KindLiveLocation,
			wantText: "[Live Location: 1.5, 2.5]",
		},
		{
			name: "buttons",
			raw: &waE2E.Message{ButtonsMessage: &waE2E.ButtonsMessage{
				ContentText: proto.String("pick one"),
			}},
			wantType: KindButtons,
			wantText: "pick one",
		},
		{
			name: "list",
			raw: &waE2E.Message{ListMessage: &waE2E.ListMessage{
				Description: proto.String("menu"),
				Title:       proto.String("Lunch"),
			}},
			wantType: KindList,
			wantText: "menu",
		},
		{
			name:     "template",
			raw:      &waE2E.Message{TemplateMessage: &waE2E.TemplateMessage{}},
			wantType: KindTemplate,
			wantText: "[Template Message]",
		},
		{
			name: "reaction",
			raw: &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{
				Text: proto.String("👍"),
			}},
			wantType: KindReaction,
			wantText: "[Reaction: 👍]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if got.Type != tt.wantType {
				t.Errorf("type = %q, want %q", got.Type, tt.wantType)
			}
			if got.Text != tt.wantText {
				t.Errorf("text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Text == "" {
				t.Error("text must never be empty for a known variant")
			}
		})
	}
}

func TestNormalizeSideChannels(t *testing.T) {
	raw := &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
		Seconds:  proto.Uint32(42),
		Mimetype: proto.String("audio/ogg"),
	}}
	got := Normalize(raw)
	if got.AdditionalInfo["duration"] != uint32(42) {
		t.Errorf("duration = %v, want 42", got.AdditionalInfo["duration"])
	}
	if got.AdditionalInfo["mimeType"] != "audio/ogg" {
		t.Errorf("mimeType = %v, want audio/ogg", got.AdditionalInfo["mimeType"])
	}

	loc := Normalize(&waE2E.Message{LocationMessage: &waE2E.LocationMessage{
		DegreesLatitude:  proto.Float64(10),
		DegreesLongitude: proto.Float64(20),
	}})
	coords, ok := loc.AdditionalInfo["coordinates"].(map[string]float64)
	if !ok {
		t.Fatalf("coordinates missing: %v", loc.AdditionalInfo)
	}
	if coords["latitude"] != 10 || coords["longitude"] != 20 {
		t.Errorf("coordinates = %v", coords)
	}
}

func TestNormalizeQuotedMessage(t *testing.T) {
	raw := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text: proto.String("replying"),
		ContextInfo: &waE2E.ContextInfo{
			QuotedMessage: &waE2E.Message{Conversation: proto.String("original")},
			MentionedJID:  []string{"123@s.whatsapp.net"},
		},
	}}
	got := Normalize(raw)
	if got.AdditionalInfo["quotedMessage"] != "original" {
		t.Errorf("quotedMessage = %v, want %q", got.AdditionalInfo["quotedMessage"], "original")
	}
	mentions, ok := got.AdditionalInfo["mentions"].([]string)
	if !ok || len(mentions) != 1 || mentions[0] != "123@s.whatsapp.net" {
		t.Errorf("mentions = %v", got.AdditionalInfo["mentions"])
	}
}

func TestNormalizeQuoteChainIsBounded(t *testing.T) {
	// Build a quote chain far deeper than the recursion cap.
	inner := &waE2E.Message{Conversation: proto.String("deepest")}
	for i := 0; i < 50; i++ {
		inner = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String("level"),
			ContextInfo: &waE2E.ContextInfo{QuotedMessage: inner},
		}}
	}
	got := Normalize(inner)
	if got.Type != KindExtendedText {
		t.Errorf("type = %q, want %q", got.Type, KindExtendedText)
	}
	if got.Text != "level" {
		t.Errorf("text = %q", got.Text)
	}
}

func TestNormalizeFallbackFindsNestedCaption(t *testing.T) {
	raw := &waE2E.Message{GroupInviteMessage: &waE2E.GroupInviteMessage{
		Caption: proto.String("join us"),
	}}
	got := Normalize(raw)
	if got.Text != "join us" {
		t.Errorf("text = %q, want %q", got.Text, "join us")
	}
	if got.Type != Kind("groupInviteMessage") {
		t.Errorf("type = %q, want groupInviteMessage", got.Type)
	}
}

func TestNormalizeUnsupportedRecordsKeys(t *testing.T) {
	raw := &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{}}
	got := Normalize(raw)
	if got.Type != KindUnsupported {
		t.Errorf("type = %q, want %q", got.Type, KindUnsupported)
	}
	if got.Text != "[Unsupported Message Type]" {
		t.Errorf("text = %q", got.Text)
	}
	keys, ok := got.AdditionalInfo["messageKeys"].([]string)
	if !ok || len(keys) != 1 || keys[0] != "protocolMessage" {
		t.Errorf("messageKeys = %v", got.AdditionalInfo["messageKeys"])
	}
}

func TestNormalizeNilMessage(t *testing.T) {
	got := Normalize(nil)
	if got.Type != KindUnsupported {
		t.Errorf("type = %q, want %q", got.Type, KindUnsupported)
	}
	if got.Text == "" {
		t.Error("text must not be empty")
	}
}

func TestNormalizeSanitizesInvalidUTF8(t *testing.T) {
	raw := &waE2E.Message{Conversation: proto.String("ok\xff\xfe")}
	got := Normalize(raw)
	if !strings.HasPrefix(got.Text, "ok") {
		t.Errorf("text = %q", got.Text)
	}
	if strings.Contains(got.Text, "\xff") {
		t.Errorf("invalid byte survived sanitization: %q", got.Text)
	}
}
