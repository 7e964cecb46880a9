package views

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
	"github.com/payback159/raidsplit/pkg/observable"
)

// Toasts is the queue of transient user messages of one session
type Toasts struct {
	mu      sync.Mutex
	items   []models.Message
	now     func() time.Time
	subject observable.Subject[models.Message]
}

// NewToasts creates an empty toast queue
func NewToasts() *Toasts {
	return &Toasts{now: time.Now}
}

// DefaultDuration returns the lifetime used when a toast gives none
func DefaultDuration(t models.MessageType) time.Duration {
	switch t {
	case models.MessageError:
		return models.ErrorDuration
	case models.MessageSuccess:
		return models.SuccessDuration
	default:
		return models.InfoDuration
	}
}

// Push queues a toast. A non-positive duration selects the default for
// the message type.
func (t *Toasts) Push(kind models.MessageType, text string, duration time.Duration) models.Message {
	if duration <= 0 {
		duration = DefaultDuration(kind)
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		Type:      kind,
		Text:      text,
		ExpiresAt: t.now().Add(duration),
	}

	t.mu.Lock()
	t.items = append(t.items, msg)
	t.mu.Unlock()

	logging.LogDebug("Toast queued", "type", string(kind), "id", msg.ID)
	t.subject.Notify(msg)
	return msg
}

// Success queues a success toast with the default duration
func (t *Toasts) Success(text string) models.Message {
	return t.Push(models.MessageSuccess, text, 0)
}

// Error queues an error toast with the default duration
func (t *Toasts) Error(text string) models.Message {
	return t.Push(models.MessageError, text, 0)
}

// Info queues an info toast with the default duration
func (t *Toasts) Info(text string) models.Message {
	return t.Push(models.MessageInfo, text, 0)
}

// Active drops expired toasts and returns the remaining ones oldest first
func (t *Toasts) Active() []models.Message {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.items[:0]
	for _, m := range t.items {
		if now.Before(m.ExpiresAt) {
			kept = append(kept, m)
		}
	}
	t.items = kept
	return append([]models.Message(nil), kept...)
}

// Dismiss removes a toast before it expires
func (t *Toasts) Dismiss(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, m := range t.items {
		if m.ID == id {
			t.items = append(t.items[:i], t.items[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribe registers fn for every new toast
func (t *Toasts) Subscribe(fn func(models.Message)) func() {
	return t.subject.Subscribe(fn)
}
