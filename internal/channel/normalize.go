package channel

import (
	"encoding/json"
	"strconv"
	"time"

	"kisanbot/internal/domain"
)

// Normalize parses a webhook delivery into canonical messages: one per
// user-originated event. Provider status events (delivery receipts, read
// receipts) are dropped. A payload that cannot be understood yields a
// NormalizationError; the webhook handler still acknowledges it.
func Normalize(body []byte) ([]domain.Message, error) {
	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &domain.NormalizationError{Reason: "invalid JSON: " + err.Error()}
	}
	if payload.Object != "whatsapp_business_account" {
		return nil, &domain.NormalizationError{Reason: "unexpected object: " + payload.Object}
	}

	var messages []domain.Message
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := contactNames(change.Value.Contacts)
			for _, m := range change.Value.Messages {
				msg, ok := normalizeOne(m, names)
				if !ok {
					continue
				}
				messages = append(messages, msg)
			}
		}
	}

	return messages, nil
}

// normalizeOne maps a single provider event to a Message. Unsupported
// message types (stickers, documents, locations) keep the sender and are
// marked unsupported so the pipeline can answer with a fixed notice.
func normalizeOne(m waMessage, names map[string]string) (domain.Message, bool) {
	msg := domain.Message{
		UserID:     m.From,
		UserName:   names[m.From],
		MessageID:  m.ID,
		ReceivedAt: parseTimestamp(m.Timestamp),
	}

	switch m.Type {
	case "text":
		if m.Text == nil || m.Text.Body == "" {
			return domain.Message{}, false
		}
		msg.Modality = domain.ModalityText
		msg.Text = m.Text.Body
	case "image":
		if m.Image == nil || m.Image.ID == "" {
			return domain.Message{}, false
		}
		msg.Modality = domain.ModalityImage
		msg.MediaRef = m.Image.ID
		msg.Text = m.Image.Caption
	case "audio":
		if m.Audio == nil || m.Audio.ID == "" {
			return domain.Message{}, false
		}
		msg.Modality = domain.ModalityAudio
		msg.MediaRef = m.Audio.ID
	default:
		msg.Modality = domain.ModalityUnsupported
	}

	if msg.UserID == "" || msg.MessageID == "" {
		return domain.Message{}, false
	}
	return msg, true
}

func contactNames(contacts []waContact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		names[c.WaID] = c.Profile.Name
	}
	return names
}

func parseTimestamp(ts string) time.Time {
	if secs, err := strconv.ParseInt(ts, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0)
	}
	return time.Now()
}
