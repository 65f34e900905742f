package history

import "time"

// Backend is the in-memory core: a hash index of named Objects, each
// holding a bounded, age-limited line list. Backend itself never touches
// disk; persistence is layered on top by Host.
type Backend struct {
	idx *hashIndex
	now func() time.Time
}

// NewBackend builds an empty backend with a fresh hash index key.
func NewBackend() (*Backend, error) {
	idx, err := newHashIndex()
	if err != nil {
		return nil, err
	}
	return &Backend{idx: idx, now: time.Now}, nil
}

func (b *Backend) nowUnix() int64 { return b.now().Unix() }

func (b *Backend) chainKey() [32]byte { return b.idx.key }

// Add appends a line to the named object, evicting the oldest line first
// if the object is already at its line cap. If the object has never had
// SetLimit called on it, defaults are applied and healed is true so the
// host can log a warning; the append itself always succeeds.
func (b *Backend) Add(name string, tags []Tag, text string) (healed bool, err error) {
	o := b.idx.findOrAdd(name)
	if o.MaxLines == 0 {
		o.MaxLines = DefaultMaxLines
		o.MaxTime = DefaultMaxTime
		healed = true
	}

	if o.NumLines >= o.MaxLines {
		b.delLine(o, o.head)
	}
	b.addLine(o, tags, text)
	return healed, nil
}

func (b *Backend) addLine(o *Object, tags []Tag, text string) {
	local := deepCopyTags(tags)
	t := resolveTimestamp(&local, b.now)

	l := &Line{T: t, Tags: local, Text: text}
	if o.tail != nil {
		o.tail.next = l
		l.prev = o.tail
		o.tail = l
	} else {
		o.head, o.tail = l, l
	}
	o.NumLines++
	o.Dirty = true
	if o.OldestT == 0 || l.T < o.OldestT {
		o.OldestT = l.T
	}
}

func (b *Backend) delLine(o *Object, l *Line) {
	if l.prev != nil {
		l.prev.next = l.next
	} else {
		o.head = l.next
	}
	if l.next != nil {
		l.next.prev = l.prev
	} else {
		o.tail = l.prev
	}
	l.prev, l.next = nil, nil
	o.NumLines--
	o.Dirty = true

	// The line just removed may have held OldestT; if so it must be
	// recomputed from the survivors rather than left stale.
	if l.T == o.OldestT {
		o.OldestT = 0
		for cur := o.head; cur != nil; cur = cur.next {
			if o.OldestT == 0 || cur.T < o.OldestT {
				o.OldestT = cur.T
			}
		}
	}
}

// cleanup drops lines that are either older than the object's max age or
// beyond its line cap, recomputing OldestT along the way. It is safe to
// call on an object with no lines.
func (b *Backend) cleanup(o *Object) {
	redline := b.nowUnix() - o.MaxTime
	if o.OldestT != 0 && o.OldestT < redline {
		o.OldestT = 0
		for l := o.head; l != nil; {
			next := l.next
			if l.T < redline {
				b.delLine(o, l)
			} else if o.OldestT == 0 || l.T < o.OldestT {
				o.OldestT = l.T
			}
			l = next
		}
	}

	if o.NumLines > o.MaxLines {
		o.OldestT = 0
		for l := o.head; l != nil; {
			next := l.next
			if o.NumLines > o.MaxLines {
				b.delLine(o, l)
			} else if o.OldestT == 0 || l.T < o.OldestT {
				o.OldestT = l.T
			}
			l = next
		}
	}
}

// Request returns a snapshot of the surviving lines for name under
// filter, or nil if no object by that name exists (distinct from an
// object that exists but has zero surviving lines, which returns a
// Result with an empty Lines slice).
func (b *Backend) Request(name string, filter Filter) *Result {
	o := b.idx.find(name)
	if o == nil {
		return nil
	}

	redline := b.nowUnix() - o.MaxTime
	if filter.LastSeconds > 0 {
		window := filter.LastSeconds
		if o.MaxTime < window {
			window = o.MaxTime
		}
		redline = b.nowUnix() - window
	}

	sendable := 0
	for l := o.head; l != nil; l = l.next {
		if l.T >= redline {
			sendable++
		}
	}

	skip := sendable - filter.LastLines
	if skip < 0 {
		skip = 0
	}

	res := &Result{Object: name}
	seen := 0
	for l := o.head; l != nil; l = l.next {
		if l.T < redline {
			continue
		}
		seen++
		if seen <= skip {
			continue
		}
		res.Lines = append(res.Lines, Line{T: l.T, Tags: deepCopyTags(l.Tags), Text: l.Text})
	}
	return res
}

// Destroy drops name from the index entirely. It reports whether an
// object by that name existed.
func (b *Backend) Destroy(name string) bool {
	o := b.idx.find(name)
	if o == nil {
		return false
	}
	o.head, o.tail = nil, nil
	b.idx.remove(o)
	return true
}

// SetLimit installs new caps on name, creating the object if it doesn't
// exist yet, and immediately runs cleanup so a lowered limit takes
// effect right away rather than at the next tick.
func (b *Backend) SetLimit(name string, maxLines int, maxTime int64) {
	o := b.idx.findOrAdd(name)
	o.MaxLines = maxLines
	o.MaxTime = maxTime
	b.cleanup(o)
}

// bucketAt exposes the raw chain for a bucket index; used by the
// cleaner's amortized sweep, which lives in the same package.
func (b *Backend) bucketAt(i int) *Object { return b.idx.buckets[i] }
