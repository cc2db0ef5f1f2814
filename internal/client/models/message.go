package models

import "time"

// Message is one entry of the shared message ledger. Receiver is a username
// for direct messages and a group name for group messages.
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
}

// IsBetween reports whether m is a direct message exchanged by a and b, in
// either direction.
func (m Message) IsBetween(a, b string) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}
