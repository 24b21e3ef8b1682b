// Package id generates the identifiers used by CyPlan records.
//
//	id.NewULID()     // "01ARZ3NDEKTSV4RRFFQ69G5FAV", time-sortable primary keys
//	id.NewThreadID() // "thread_9f86d081884c7d65", conversation threads
package id

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ThreadPrefix prefixes every thread id.
const ThreadPrefix = "thread_"

// ErrInvalidULID is returned when a ULID string is invalid.
var ErrInvalidULID = errors.New("invalid ULID format")

// Generator creates unique ids.
type Generator interface {
	Generate() string
}

// ULIDGenerator produces ULIDs that sort by creation time, including ids
// created within the same millisecond.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULIDGenerator creates a generator backed by a monotonic crypto/rand entropy source.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Generate implements Generator.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

var defaultULID = NewULIDGenerator()

// NewULID returns a new ULID string from the default generator.
func NewULID() string {
	return defaultULID.Generate()
}

// ParseULID validates s and returns the embedded creation time.
func ParseULID(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, ErrInvalidULID
	}
	return ulid.Time(u.Time()), nil
}

// NewHex returns n random bytes hex encoded.
func NewHex(n int) string {
	b := make([]byte, n)
	_, _ = io.ReadFull(rand.Reader, b)
	return hex.EncodeToString(b)
}

// NewThreadID returns "thread_" followed by 16 hex digits.
func NewThreadID() string {
	return ThreadPrefix + NewHex(8)
}
