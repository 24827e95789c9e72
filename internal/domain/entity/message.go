package entity

import (
	"bytes"
	"encoding/json"
)

// MessageKind дискриминатор поля type во входящем сообщении сокета.
type MessageKind string

const (
	KindDetections            MessageKind = "detections"
	KindStatus                MessageKind = "status"
	KindConnectionEstablished MessageKind = "connection_established"
	KindUnknown               MessageKind = "unknown"
)

// InboundMessage одно разобранное сообщение детектора.
type InboundMessage struct {
	Kind       MessageKind
	Message    string
	Detections []Detection
}

type wireMessage struct {
	Type       string      `json:"type"`
	Message    string      `json:"message"`
	Detections []Detection `json:"detections"`
}

// ParseInboundMessage разбирает JSON-сообщение детектора.
// ok=false означает, что сообщение нужно молча отбросить.
func ParseInboundMessage(data []byte) (InboundMessage, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return InboundMessage{}, false
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return InboundMessage{}, false
	}

	switch MessageKind(head.Type) {
	case KindDetections, KindStatus, KindConnectionEstablished:
	default:
		return InboundMessage{Kind: KindUnknown}, true
	}

	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return InboundMessage{}, false
	}

	msg := InboundMessage{Kind: MessageKind(wire.Type), Message: wire.Message}
	if msg.Kind == KindDetections {
		// отсутствующий или null список считается пустым набором
		msg.Detections = wire.Detections
		if msg.Detections == nil {
			msg.Detections = []Detection{}
		}
	}
	return msg, true
}
