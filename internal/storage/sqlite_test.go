package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAssignsRecordFields(t *testing.T) {
	s := newTestStore(t)

	before := time.Now().UTC()
	id, err := s.Insert("192.168.1.100", 54321, []byte("Message 1"))
	require.NoError(t, err)
	after := time.Now().UTC()

	m, err := s.GetByID(id)
	require.NoError(t, err)

	assert.Equal(t, id, m.ID)
	assert.Equal(t, "192.168.1.100", m.SourceAddress)
	assert.Equal(t, 54321, m.SourcePort)
	assert.Equal(t, []byte("Message 1"), m.Payload)
	assert.Equal(t, 9, m.PayloadSize)
	require.NotNil(t, m.PayloadText)
	assert.Equal(t, "Message 1", *m.PayloadText)
	assert.False(t, m.ReceivedAt.Before(before))
	assert.False(t, m.ReceivedAt.After(after))
}

func TestInsertIDsAreMonotonic(t *testing.T) {
	s := newTestStore(t)

	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.Insert("10.0.0.1", 1000, []byte("x"))
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestBinaryPayloadHasNoText(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Insert("10.0.0.1", 2000, []byte{0x00, 0x01, 0xff})
	require.NoError(t, err)

	m, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Nil(t, m.PayloadText)
	assert.Equal(t, []byte{0x00, 0x01, 0xff}, m.Payload)
	assert.Equal(t, 3, m.PayloadSize)
}

func TestNulByteTextRoundTrip(t *testing.T) {
	s := newTestStore(t)

	// Valid UTF-8 that happens to contain a NUL byte is still text.
	payload := []byte("hello\x00world")
	id, err := s.Insert("10.0.0.1", 2000, payload)
	require.NoError(t, err)

	m, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, payload, m.Payload)
	require.NotNil(t, m.PayloadText)
	assert.Equal(t, string(payload), *m.PayloadText)
}

func TestEmptyPayload(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Insert("10.0.0.1", 2000, []byte{})
	require.NoError(t, err)

	m, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 0, m.PayloadSize)
	assert.Len(t, m.Payload, 0)
	require.NotNil(t, m.PayloadText)
	assert.Equal(t, "", *m.PayloadText)
}

func TestGetByIDNotFound(t *testing.T) {
	s := newTestStore(t)

	m, err := s.GetByID(42)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryOrderAndFilters(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Insert("192.168.1.100", 54321, []byte("Message 1"))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.Insert("192.168.1.101", 54322, []byte("Message 2"))
	require.NoError(t, err)

	// Most recent first.
	all, err := s.Query(QueryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []byte("Message 2"), all[0].Payload)
	assert.Equal(t, []byte("Message 1"), all[1].Payload)

	byAddr, err := s.Query(QueryFilter{SourceAddress: "192.168.1.100"})
	require.NoError(t, err)
	require.Len(t, byAddr, 1)
	assert.Equal(t, []byte("Message 1"), byAddr[0].Payload)

	byPort, err := s.Query(QueryFilter{SourcePort: 54322})
	require.NoError(t, err)
	require.Len(t, byPort, 1)
	assert.Equal(t, []byte("Message 2"), byPort[0].Payload)

	none, err := s.Query(QueryFilter{SourceAddress: "10.9.9.9"})
	require.NoError(t, err)
	assert.Empty(t, none)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestQueryPaginationIsStable(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 4; i++ {
		_, err := s.Insert("10.0.0.1", 1000, []byte{byte('a' + i)})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	full, err := s.Query(QueryFilter{Limit: 4})
	require.NoError(t, err)
	require.Len(t, full, 4)

	page1, err := s.Query(QueryFilter{Limit: 2})
	require.NoError(t, err)
	page2, err := s.Query(QueryFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)

	paged := append(page1, page2...)
	require.Len(t, paged, 4)
	for i := range full {
		assert.Equal(t, full[i].ID, paged[i].ID)
	}
}

func TestOffsetWithoutLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.Insert("10.0.0.1", 1000, []byte("m"))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	rest, err := s.Query(QueryFilter{Offset: 1})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestDeleteOlderThanZeroRemovesEverything(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.Insert("10.0.0.1", 1000, []byte("m"))
		require.NoError(t, err)
	}
	time.Sleep(5 * time.Millisecond)

	deleted, err := s.DeleteOlderThan(0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDeleteOlderThanKeepsRecentRecords(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Insert("10.0.0.1", 1000, []byte("recent"))
	require.NoError(t, err)

	deleted, err := s.DeleteOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 2; i++ {
		_, err := s.Insert("10.0.0.1", 1000, []byte("m"))
		require.NoError(t, err)
	}
	require.NoError(t, s.ClearAll())

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestPurgeConcurrentWithInserts(t *testing.T) {
	s := newTestStore(t)

	const inserts = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < inserts; i++ {
			_, err := s.Insert("10.0.0.1", 1000, []byte("m"))
			assert.NoError(t, err)
		}
	}()

	var totalDeleted int64
	for i := 0; i < 10; i++ {
		deleted, err := s.DeleteOlderThan(0)
		require.NoError(t, err)
		totalDeleted += deleted
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	// Every record is either still visible or accounted for by a purge;
	// nothing is lost or double-counted.
	remaining, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(inserts), totalDeleted+remaining)
}
