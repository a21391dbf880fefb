// Package nodedb is the on-disk peer cache implied by the teacher's
// nodeDBPath parameter (threaded through ListenUDP/newTable in
// p2p/discover/udp.go but never implemented in the retrieved file).
// It persists routing metadata only — id, endpoint, last-seen,
// failure count — never DHT values, so it does not conflict with the
// "no persistent value store" Non-goal. Backed by
// github.com/syndtr/goleveldb for on-disk storage and
// github.com/hashicorp/golang-lru as a bounded read-through cache in
// front of it.
package nodedb

import (
	"encoding/binary"
	"errors"
	"net"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/MOACChain/knode/id"
	"github.com/MOACChain/knode/klog"
	"github.com/MOACChain/knode/netio"
	"github.com/MOACChain/knode/node"
)

const cacheSize = 256

var errShortRecord = errors.New("nodedb: record too short to decode")

func newMemStorage() storage.Storage {
	return storage.NewMemStorage()
}

// DB is a leveldb-backed cache of last-known peer records, read
// through a bounded in-memory LRU.
type DB struct {
	ldb   *leveldb.DB
	cache *lru.Cache
	log   *klog.Logger
}

// Open opens (creating if necessary) the leveldb file at path. Passing
// an empty path opens an in-memory database, useful for tests and for
// bootstrap-only nodes that do not want to persist routing metadata.
func Open(path string, log *klog.Logger) (*DB, error) {
	if log == nil {
		log = klog.Nop()
	}
	var (
		ldb *leveldb.DB
		err error
	)
	if path == "" {
		ldb, err = leveldb.Open(newMemStorage(), nil)
	} else {
		ldb, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		ldb.Close()
		return nil, err
	}
	return &DB{ldb: ldb, cache: cache, log: log}, nil
}

// Close releases the underlying leveldb handle.
func (d *DB) Close() error {
	return d.ldb.Close()
}

// Put persists n's current record, overwriting any prior entry for the
// same id.
func (d *DB) Put(n *node.Node) error {
	key := n.ID.Bytes()
	val := encodeRecord(n)
	if err := d.ldb.Put(key, val, nil); err != nil {
		return err
	}
	d.cache.Add(n.ID, n)
	return nil
}

// Get returns the last-persisted record for nodeID, if any.
func (d *DB) Get(nodeID id.Id160) (*node.Node, bool) {
	if v, ok := d.cache.Get(nodeID); ok {
		return v.(*node.Node), true
	}
	raw, err := d.ldb.Get(nodeID.Bytes(), nil)
	if err != nil {
		return nil, false
	}
	n, err := decodeRecord(raw)
	if err != nil {
		d.log.Debugf("nodedb: dropping corrupt record for %s: %v", nodeID.Hex(), err)
		return nil, false
	}
	d.cache.Add(nodeID, n)
	return n, true
}

// Delete removes any persisted record for nodeID.
func (d *DB) Delete(nodeID id.Id160) error {
	d.cache.Remove(nodeID)
	return d.ldb.Delete(nodeID.Bytes(), nil)
}

// All returns every persisted node record, used to seed the routing
// table before bootstrap runs.
func (d *DB) All() ([]*node.Node, error) {
	var out []*node.Node
	var it iterator.Iterator = d.ldb.NewIterator(&util.Range{}, nil)
	defer it.Release()
	for it.Next() {
		n, err := decodeRecord(it.Value())
		if err != nil {
			d.log.Debugf("nodedb: skipping corrupt record during scan: %v", err)
			continue
		}
		out = append(out, n)
	}
	return out, it.Error()
}

// record layout: id(20) | port(2) | addrtag(1) | addr(4 or 16) | lastSeenUnix(8) | failures(4)
func encodeRecord(n *node.Node) []byte {
	addrLen := 4
	tag := byte(1)
	ip4 := n.Addr.IP.To4()
	if ip4 == nil {
		addrLen = 16
		tag = 2
		ip4 = n.Addr.IP.To16()
	}
	buf := make([]byte, id.Size+2+1+addrLen+8+4)
	off := 0
	copy(buf[off:], n.ID.Bytes())
	off += id.Size
	binary.LittleEndian.PutUint16(buf[off:], n.Addr.Port)
	off += 2
	buf[off] = tag
	off++
	copy(buf[off:], ip4)
	off += addrLen
	binary.LittleEndian.PutUint64(buf[off:], uint64(n.LastSeen().Unix()))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(n.Failures()))
	return buf
}

func decodeRecord(buf []byte) (*node.Node, error) {
	if len(buf) < id.Size+2+1 {
		return nil, errShortRecord
	}
	nodeID := id.FromBytes(buf[:id.Size])
	off := id.Size
	port := binary.LittleEndian.Uint16(buf[off:])
	off += 2
	tag := buf[off]
	off++
	addrLen := 4
	if tag == 2 {
		addrLen = 16
	}
	if len(buf) < off+addrLen+8+4 {
		return nil, errShortRecord
	}
	ip := make(net.IP, addrLen)
	copy(ip, buf[off:off+addrLen])
	off += addrLen

	lastSeenUnix := int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	failures := int(binary.LittleEndian.Uint32(buf[off:]))

	n := node.Restore(nodeID, netio.Endpoint{IP: ip, Port: port}, time.Unix(lastSeenUnix, 0), failures)
	return n, nil
}
