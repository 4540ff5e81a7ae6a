package requests

// Mark is the result of a dedup lookup.
type Mark int

const (
	Fresh Mark = iota
	Duplicate
)

func (m Mark) String() string {
	if m == Duplicate {
		return "duplicate"
	}
	return "fresh"
}

// DedupCache remembers fingerprints handled in one session. Entries are only
// dropped by Reset. The cache is owned by a single session and is not safe for
// concurrent use.
type DedupCache struct {
	seen map[Fingerprint]struct{}
}

func NewDedupCache() *DedupCache {
	return &DedupCache{seen: map[Fingerprint]struct{}{}}
}

// CheckAndMark records fp and reports whether it had been seen before.
func (d *DedupCache) CheckAndMark(fp Fingerprint) Mark {
	if d.seen == nil {
		d.seen = map[Fingerprint]struct{}{}
	}
	if _, ok := d.seen[fp]; ok {
		return Duplicate
	}
	d.seen[fp] = struct{}{}
	return Fresh
}

// Contains reports whether fp was marked, without marking it.
func (d *DedupCache) Contains(fp Fingerprint) bool {
	_, ok := d.seen[fp]
	return ok
}

func (d *DedupCache) Len() int { return len(d.seen) }

func (d *DedupCache) Reset() {
	d.seen = map[Fingerprint]struct{}{}
}
