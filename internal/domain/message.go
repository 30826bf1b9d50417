package domain

import "time"

// Modality is the media kind of an inbound message.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"

	// ModalityUnsupported marks user-originated events the pipeline cannot
	// process (stickers, documents, locations). They still get a reply.
	ModalityUnsupported Modality = "unsupported"
)

// Message is the canonical form of one user-originated webhook event.
// For text messages MediaRef is empty; for image/audio it carries the
// provider media ID used to fetch the binary content.
type Message struct {
	UserID     string
	UserName   string
	MessageID  string
	Modality   Modality
	Text       string // raw text, or caption for media messages
	MediaRef   string
	ReceivedAt time.Time
}

// Exchange is one entry of a user's conversation history.
type Exchange struct {
	Role      string // "user" | "assistant"
	Content   string
	Timestamp time.Time
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GroundingFact is a single knowledge-base hit used to ground a response.
type GroundingFact struct {
	Topic string
	Text  string
	Score float64 // relevance in [0,1]
}

// ValidationStatus is the validator's verdict on a generated response.
type ValidationStatus string

const (
	ValidationUnchecked ValidationStatus = "unchecked"
	ValidationApproved  ValidationStatus = "approved"
	ValidationRejected  ValidationStatus = "rejected"
)

// GeneratedResponse is the pipeline's working copy of a generated reply.
// Created by the generator, mutated once by the validator, then consumed
// by the translator and the outbound formatter.
type GeneratedResponse struct {
	Text             string
	Grounded         bool
	ValidationStatus ValidationStatus
}

// DeliveryResult reports the outcome of an outbound send.
type DeliveryResult struct {
	Sent bool
	Err  error
}
