package uid

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID generates lexicographically sortable ULID strings.
type ULID struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewULID() *ULID {
	return &ULID{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (u *ULID) Generate() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), u.entropy).String()
}
