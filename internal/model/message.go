// internal/model/message.go
package model

import "time"

// Message is one stored UDP datagram together with its origin metadata.
// Records are immutable after insert; only the retention purge or an
// explicit clear removes them.
type Message struct {
	ID            int64     `db:"id"`
	ReceivedAt    time.Time `db:"received_at"`
	SourceAddress string    `db:"source_address"`
	SourcePort    int       `db:"source_port"`
	Payload       []byte    `db:"payload"`
	PayloadText   *string   `db:"payload_text"` // nil when the payload is not valid UTF-8
	PayloadSize   int       `db:"payload_size"`
}
