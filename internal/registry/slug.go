package registry

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
)

// Slug prefixes. Only physical tables carrying TablePrefix are managed.
const (
	TablePrefix  = "table_"
	ColumnPrefix = "column_"
)

// slugBytes is the digest length kept in a slug. 16 bytes keep
// "column_" + 32 hex characters well inside PostgreSQL's 63 byte limit.
const slugBytes = 16

var slugCounter atomic.Uint64

// NewSlug returns prefix followed by a hex blake3 digest of the current
// nanosecond time, random jitter and a process-wide counter.
func NewSlug(prefix string) string {
	var seed [32]byte
	binary.BigEndian.PutUint64(seed[0:8], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint64(seed[8:16], slugCounter.Add(1))
	_, _ = rand.Read(seed[16:])

	sum := blake3.Sum256(seed[:])
	return prefix + hex.EncodeToString(sum[:slugBytes])
}

// IsManagedTable reports whether a physical table name belongs to a Table.
func IsManagedTable(name string) bool {
	return strings.HasPrefix(name, TablePrefix) && len(name) > len(TablePrefix)
}
