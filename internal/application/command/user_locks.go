package command

import (
	"hash/fnv"
	"sync"
)

// DefaultLockStripes is the number of mutexes shared by all user ids.
const DefaultLockStripes = 256

// userLocks serializes writers of the same user. Ids hash onto a fixed set
// of stripes; two users may share a stripe, one user never spans two.
type userLocks struct {
	stripes []sync.Mutex
}

func newUserLocks(n int) *userLocks {
	if n <= 0 {
		n = DefaultLockStripes
	}
	return &userLocks{stripes: make([]sync.Mutex, n)}
}

func (l *userLocks) stripe(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}

// lock acquires the stripe for userID and returns its release.
func (l *userLocks) lock(userID string) func() {
	m := l.stripe(userID)
	m.Lock()
	return m.Unlock
}
