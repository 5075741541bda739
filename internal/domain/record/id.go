package record

import (
	"sync"
	"time"
)

// Identifier prefixes, one per entity kind.
const (
	PrefixRecord       = "R"
	PrefixExamination  = "E"
	PrefixPrescription = "P"
	PrefixOperation    = "O"
	PrefixAttachment   = "A"
)

const idLayout = "20060102150405"

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// IDGenerator issues identifiers of the form prefix + YYYYMMDDHHMMSS. Within
// one process it never repeats an identifier for the same prefix: when the
// current second was already used, the next unused second is issued instead.
type IDGenerator struct {
	now Clock

	mu   sync.Mutex
	last map[string]time.Time
}

func NewIDGenerator(now Clock) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now, last: make(map[string]time.Time)}
}

func (g *IDGenerator) Next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now().Truncate(time.Second)
	if last, ok := g.last[prefix]; ok && !t.After(last) {
		t = last.Add(time.Second)
	}
	g.last[prefix] = t
	return prefix + t.Format(idLayout)
}
