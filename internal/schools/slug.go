package schools

import (
	"container/list"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts s into a URL-safe slug: diacritics removed, lowercase
// ASCII letters and digits, runs of anything else collapsed into one '-'.
// Blank input yields "". Input with nothing usable yields "untitled".
func Slugify(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.ToLower(stripped)

	var b strings.Builder
	b.Grow(len(stripped))
	pendingDash := false
	for _, r := range stripped {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

// DefaultSlugCacheSize is the default Slugger capacity.
const DefaultSlugCacheSize = 10000

// Slugger memoizes Slugify with a bounded cache. When full, the oldest
// entry is evicted. Safe for concurrent use.
type Slugger struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type slugEntry struct {
	input string
	slug  string
}

// NewSlugger creates a Slugger holding at most capacity entries.
// A non-positive capacity uses DefaultSlugCacheSize.
func NewSlugger(capacity int) *Slugger {
	if capacity <= 0 {
		capacity = DefaultSlugCacheSize
	}
	return &Slugger{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Slug returns Slugify(s), from the cache when possible.
func (sl *Slugger) Slug(s string) string {
	sl.mu.Lock()
	if el, ok := sl.entries[s]; ok {
		slug := el.Value.(*slugEntry).slug
		sl.mu.Unlock()
		return slug
	}
	sl.mu.Unlock()

	slug := Slugify(s)

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if _, ok := sl.entries[s]; ok {
		return slug
	}
	if sl.order.Len() >= sl.capacity {
		oldest := sl.order.Front()
		sl.order.Remove(oldest)
		delete(sl.entries, oldest.Value.(*slugEntry).input)
	}
	sl.entries[s] = sl.order.PushBack(&slugEntry{input: s, slug: slug})
	return slug
}

// Len returns the number of cached entries.
func (sl *Slugger) Len() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.order.Len()
}
