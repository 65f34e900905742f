package history

import "time"

// Pacing constants for the amortized cleaner sweep: rather than walking
// all buckets on every tick, each tick visits a slice of them so that a
// full pass completes roughly every MaxOffSecs seconds.
const (
	Spread     = 60             // ticks per full pass
	MaxOffSecs = 300            // worst-case staleness of any one bucket, seconds
	tickPeriod = MaxOffSecs / Spread * time.Second
)

// CleanPerLoop is how many buckets a single Tick visits.
var CleanPerLoop = bucketCount / Spread

// TickInterval is how often the host should call Tick to keep the sweep
// on pace.
const TickInterval = tickPeriod

// Cleaner drives the amortized retention sweep across the backend's
// buckets, optionally persisting dirty objects as it goes.
type Cleaner struct {
	backend *Backend
	cursor  int
}

// NewCleaner returns a cleaner positioned at bucket 0.
func NewCleaner(b *Backend) *Cleaner {
	return &Cleaner{backend: b}
}

// Tick visits CleanPerLoop buckets starting from the cursor, running
// retention cleanup on every object found and, if persist is true,
// invoking write for any object left dirty by cleanup or by an earlier
// Add. write's own eligibility rules (e.g. "channel must have +P") are
// the host's concern; a write that reports success clears Dirty.
func (c *Cleaner) Tick(persist bool, write func(*Object) error) {
	for n := 0; n < CleanPerLoop; n++ {
		for o := c.backend.bucketAt(c.cursor); o != nil; o = o.next {
			c.backend.cleanup(o)
			if persist && o.Dirty && write != nil {
				if err := write(o); err == nil {
					o.Dirty = false
				}
			}
		}
		c.cursor = (c.cursor + 1) % bucketCount
	}
}
