package queue

import (
	"encoding/json"
	"time"
)

// DomainMessage is the queue payload: one candidate domain and the unix
// timestamp of the observation that produced it.
type DomainMessage struct {
	Domain    string `json:"domain"`
	Timestamp int64  `json:"timestamp"`
}

// NewDomainMessage creates a message for a domain observed now.
func NewDomainMessage(domain string) DomainMessage {
	return DomainMessage{
		Domain:    domain,
		Timestamp: time.Now().Unix(),
	}
}

// Encode serializes the message for the wire.
func (m DomainMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeDomainMessage parses a wire payload. Callers treat a decode failure
// as a poison message.
func DecodeDomainMessage(payload []byte) (DomainMessage, error) {
	var msg DomainMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return DomainMessage{}, err
	}

	return msg, nil
}
