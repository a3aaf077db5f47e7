package storage

import (
	"fmt"
	"sync"
	"time"
)

// SessionIDLayout 会话 ID 的时间格式，按字典序即按时间排序
// SessionIDLayout is the timestamp layout of session IDs; lexical order is time order.
const SessionIDLayout = "2006-01-02_15-04-05"

// NewSessionID 由时间戳生成会话 ID (秒级) / Generates a session ID from a timestamp (one-second resolution)
func NewSessionID(now time.Time) string {
	return now.Format(SessionIDLayout)
}

// IDGenerator 生成会话 ID，同一秒内重复时追加 -02、-03 后缀
// IDGenerator issues session IDs and disambiguates same-second collisions with -02, -03, ...
type IDGenerator struct {
	now    func() time.Time
	exists func(id string) bool

	mu     sync.Mutex
	issued map[string]struct{}
}

// NewIDGenerator returns a generator reading the clock from now (time.Now when nil)
// and treating ids for which exists reports true as taken.
func NewIDGenerator(now func() time.Time, exists func(id string) bool) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now, exists: exists, issued: map[string]struct{}{}}
}

// Next returns an id that this generator has not issued and the store does not hold.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	base := NewSessionID(g.now())
	id := base
	for n := 2; g.taken(id); n++ {
		id = fmt.Sprintf("%s-%02d", base, n)
	}
	g.issued[id] = struct{}{}
	return id
}

func (g *IDGenerator) taken(id string) bool {
	if _, ok := g.issued[id]; ok {
		return true
	}
	return g.exists != nil && g.exists(id)
}
