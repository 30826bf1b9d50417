package domain

// OutboundReply is a formatted reply ready for channel dispatch.
type OutboundReply struct {
	UserID string
	Text   string
}

// MessageBus decouples webhook ingestion from pipeline processing: the
// webhook handler publishes and returns immediately, workers consume.
type MessageBus interface {
	Publish(msg Message)
	Subscribe() <-chan Message
	SendOutbound(reply OutboundReply)
	OnOutbound(handler func(OutboundReply))
	Close()
}
