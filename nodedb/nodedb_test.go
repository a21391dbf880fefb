package nodedb_test

import (
	"net"
	"testing"
	"time"

	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/node"
	"github.com/MOACChain/knode/nodedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *nodedb.DB {
	t.Helper()
	db, err := nodedb.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestNode() *node.Node {
	return node.New(id.Random(), netio.Endpoint{IP: net.ParseIP("10.1.2.3"), Port: 30310})
}

func TestPutGetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	n := newTestNode()
	require.NoError(t, db.Put(n))

	got, ok := db.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, n.Addr.Port, got.Addr.Port)
	assert.True(t, n.Addr.IP.Equal(got.Addr.IP))
}

func TestGetMissingReturnsFalse(t *testing.T) {
	db := newTestDB(t)
	_, ok := db.Get(id.Random())
	assert.False(t, ok)
}

func TestDeleteRemovesRecord(t *testing.T) {
	db := newTestDB(t)
	n := newTestNode()
	require.NoError(t, db.Put(n))
	require.NoError(t, db.Delete(n.ID))

	_, ok := db.Get(n.ID)
	assert.False(t, ok)
}

func TestAllReturnsEveryPersistedRecord(t *testing.T) {
	db := newTestDB(t)
	var ids []id.Id160
	for i := 0; i < 3; i++ {
		n := newTestNode()
		ids = append(ids, n.ID)
		require.NoError(t, db.Put(n))
	}

	all, err := db.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	var got []id.Id160
	for _, n := range all {
		got = append(got, n.ID)
	}
	for _, want := range ids {
		assert.Contains(t, got, want)
	}
}

func TestPutPreservesFailuresAndLastSeenAcrossRestart(t *testing.T) {
	path := t.TempDir()
	db, err := nodedb.Open(path, nil)
	require.NoError(t, err)
	n := newTestNode()
	n.MarkFailed()
	n.MarkFailed()
	require.NoError(t, db.Put(n))
	require.NoError(t, db.Close())

	db, err = nodedb.Open(path, nil)
	require.NoError(t, err)
	defer db.Close()

	got, ok := db.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, n.Failures(), got.Failures())
	assert.WithinDuration(t, n.LastSeen(), got.LastSeen(), time.Second)
}
