package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification is a reminder shown to the traveller.
type Notification struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`

	// ScheduledAt is when the notification becomes due. Zero means it is
	// shown immediately and never handed to the poller.
	ScheduledAt time.Time `json:"scheduled_at"`

	Read      bool      `json:"is_read"`
	Triggered bool      `json:"is_triggered"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an in-memory, mutex-guarded notification list shared by the
// request path and the poller. It is created by the caller and passed
// explicitly; there is no package-level store.
type Store struct {
	mu     sync.Mutex
	items  []Notification
	unread int
	now    func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Add appends a notification and returns its new identifier.
func (s *Store) Add(title, message string, scheduledAt time.Time) string {
	n := Notification{
		ID:          uuid.NewString(),
		Title:       title,
		Message:     message,
		ScheduledAt: scheduledAt,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	s.items = append(s.items, n)
	s.unread++
	s.mu.Unlock()

	return n.ID
}

// MarkRead marks the notification read. It reports false when id is
// unknown or already read.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].Read {
			return false
		}
		s.items[i].Read = true
		s.unread = max(0, s.unread-1)
		return true
	}
	return false
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// All returns a copy of every notification in insertion order.
func (s *Store) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Get looks up a notification by id.
func (s *Store) Get(id string) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.items {
		if n.ID == id {
			return n, true
		}
	}
	return Notification{}, false
}

// TakeDue returns unread notifications scheduled at or before now that have
// not been handed out yet, and marks them triggered so each is returned once.
func (s *Store) TakeDue(now time.Time) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Notification
	for i := range s.items {
		n := &s.items[i]
		if n.ScheduledAt.IsZero() || n.Read || n.Triggered {
			continue
		}
		if n.ScheduledAt.After(now) {
			continue
		}
		n.Triggered = true
		due = append(due, *n)
	}
	return due
}
