/*
Package uid – ULID and short random id generators used for attribute defaults.

Both use Crockford base-32 and crypto/rand.
*/
package uid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Crockford base-32 alphabet (excludes I, L, O, U).
const letters = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	timeLen   = 10
	randomLen = 16
)

// UID returns a crypto-random base-32 string of the given length.
// Size >= 10 is unique enough for most keys.
func UID(size int) string {
	return randomString(size)
}

// ULID is a lexicographically sortable identifier: 48 bits of milliseconds
// followed by 80 random bits, 26 characters in total.
type ULID struct {
	when time.Time
}

// New creates a ULID for the current time.
func New() *ULID { return &ULID{when: time.Now()} }

// NewAt creates a ULID for the given time.
func NewAt(t time.Time) *ULID { return &ULID{when: t} }

func (u *ULID) String() string {
	return u.encodeTime() + randomString(randomLen)
}

func (u *ULID) encodeTime() string {
	ms := u.when.UnixMilli()
	b := make([]byte, timeLen)
	for i := timeLen - 1; i >= 0; i-- {
		b[i] = letters[ms%32]
		ms /= 32
	}
	return string(b)
}

// Time extracts the timestamp of a ULID string.
func Time(s string) (time.Time, error) {
	if len(s) != timeLen+randomLen {
		return time.Time{}, fmt.Errorf("uid: invalid ULID length %d", len(s))
	}
	var ms int64
	for _, c := range []byte(s[:timeLen]) {
		idx := strings.IndexByte(letters, c)
		if idx < 0 {
			return time.Time{}, fmt.Errorf("uid: invalid ULID char %q", c)
		}
		ms = ms*32 + int64(idx)
	}
	return time.UnixMilli(ms), nil
}

func randomString(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		panic("uid: crypto/rand read failed: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = letters[b&31]
	}
	return string(buf)
}
