package broadcast

import "time"

// Sticky retains the latest announcement of every topic so observers that
// arrive late can still read the last value.
type Sticky struct {
	store Store
	now   func() time.Time
}

// NewSticky creates a sticky sink backed by store. A nil store means an
// in-memory one.
func NewSticky(store Store) *Sticky {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Sticky{store: store, now: time.Now}
}

// PublishSticky retains fields as the current value of topic. Store
// failures are logged and dropped.
func (s *Sticky) PublishSticky(topic string, fields Fields) {
	a := Announcement{Topic: topic, Fields: fields.Clone(), Time: s.now()}
	if err := s.store.Save(a); err != nil {
		log.Warnf("sticky %s: save failed: %v", topic, err)
	}
}

// Last returns the retained announcement of topic.
func (s *Sticky) Last(topic string) (Announcement, bool) {
	a, ok, err := s.store.Load(topic)
	if err != nil {
		log.Warnf("sticky %s: load failed: %v", topic, err)
		return Announcement{}, false
	}
	return a, ok
}
