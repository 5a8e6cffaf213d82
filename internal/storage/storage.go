// Package storage is the single authoritative persistence layer for
// received datagrams. Every operation on a Store is mutually exclusive
// with every other operation on the same instance, so the listener, the
// retention scheduler, and the query API all observe a serialized view.
package storage

import (
	"errors"
	"time"

	"udp-monitor/internal/model"
)

// ErrNotFound is returned by GetByID when no record has the given id.
// It is a normal outcome, not a storage fault.
var ErrNotFound = errors.New("message not found")

// QueryFilter narrows and pages a Query. The zero value returns every
// record.
type QueryFilter struct {
	Limit         int    // <= 0 means no limit
	Offset        int    // applied after ordering
	SourceAddress string // empty means any address
	SourcePort    int    // 0 means any port
}

// Store is the operation contract shared by the UDP listener, the
// retention scheduler, and the HTTP query layer.
type Store interface {
	// Insert persists a datagram. The store assigns the id and the UTC
	// receive timestamp, computes the payload size, and keeps a decoded
	// text form when the payload is valid UTF-8.
	Insert(sourceAddress string, sourcePort int, payload []byte) (int64, error)

	// Query returns records ordered by received_at descending (ties
	// broken by id descending), with the filter's offset/limit window
	// applied after ordering. A result with no matches is empty, not an
	// error.
	Query(f QueryFilter) ([]model.Message, error)

	// GetByID returns the record with the given id, or ErrNotFound.
	GetByID(id int64) (*model.Message, error)

	// Count returns the total number of stored records.
	Count() (int64, error)

	// DeleteOlderThan removes every record received strictly before
	// now minus age and returns the number removed. An age of zero
	// deletes everything currently present.
	DeleteOlderThan(age time.Duration) (int64, error)

	// ClearAll unconditionally deletes every record.
	ClearAll() error

	Close() error
}
