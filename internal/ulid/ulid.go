// Package ulid generates prefixed, lexicographically sortable identifiers
// on top of github.com/oklog/ulid/v2. A prefix names the entity the ID
// belongs to ("prof-..." for profiles, "req-..." for hub requests), which
// keeps IDs self-describing in logs and in the database.
package ulid

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixProfile = "prof"
	PrefixRequest = "req"

	separator = "-"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)

	// Nil is the zero ULID.
	Nil = ULID{}
)

// ULID wraps ulid.ULID with an entity prefix and database/JSON codecs.
type ULID struct {
	id     ulid.ULID
	prefix string
}

// New returns a ULID stamped with the current time.
func New(prefix string) ULID {
	return NewAt(time.Now(), prefix)
}

// NewAt returns a ULID stamped with t. The entropy source is monotonic, so
// IDs created within the same millisecond still sort in creation order.
func NewAt(t time.Time, prefix string) ULID {
	mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	mu.Unlock()
	return ULID{id: id, prefix: prefix}
}

// Parse accepts both plain ("01AN4Z...") and prefixed ("prof-01AN4Z...")
// forms.
func Parse(s string) (ULID, error) {
	prefix, raw := "", s
	if i := strings.Index(s, separator); i >= 0 {
		prefix, raw = s[:i], s[i+len(separator):]
	}
	id, err := ulid.Parse(raw)
	if err != nil {
		return ULID{}, fmt.Errorf("parsing ulid %q: %w", s, err)
	}
	return ULID{id: id, prefix: prefix}, nil
}

// MustParse is Parse that panics on error, for static initializers.
func MustParse(s string) ULID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Valid reports whether s parses as a plain or prefixed ULID.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func (u ULID) IsZero() bool {
	return u.id == (ulid.ULID{})
}

func (u ULID) Prefix() string {
	return u.prefix
}

// Time returns the timestamp component.
func (u ULID) Time() time.Time {
	return ulid.Time(u.id.Time())
}

func (u ULID) String() string {
	if u.prefix == "" {
		return u.id.String()
	}
	return u.prefix + separator + u.id.String()
}

func (u ULID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *ULID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Value implements driver.Valuer; ULIDs are stored as their string form.
func (u ULID) Value() (driver.Value, error) {
	return u.String(), nil
}

// Scan implements sql.Scanner for string and []byte columns.
func (u *ULID) Scan(src any) error {
	switch src := src.(type) {
	case nil:
		return nil
	case string:
		parsed, err := Parse(src)
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(src))
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ULID", src)
	}
}

// RequestID returns a fresh hub request identifier.
func RequestID() string {
	return New(PrefixRequest).String()
}
