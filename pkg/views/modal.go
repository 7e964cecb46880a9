package views

import "sync"

// KeyEscape is the key name browsers report for the Escape key
const KeyEscape = "Escape"

// Modal is a closed/open presentation state machine
type Modal struct {
	mu   sync.Mutex
	name string
	open bool
}

// NewModal creates a closed modal; name only appears in logs
func NewModal(name string) *Modal {
	return &Modal{name: name}
}

// Name returns the modal's name
func (m *Modal) Name() string {
	return m.name
}

// Open opens the modal
func (m *Modal) Open() {
	m.mu.Lock()
	m.open = true
	m.mu.Unlock()
}

// Close closes the modal; closing a closed modal is a no-op
func (m *Modal) Close() {
	m.mu.Lock()
	m.open = false
	m.mu.Unlock()
}

// IsOpen reports whether the modal is shown
func (m *Modal) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// HandleKey closes the modal on Escape while it is open and reports
// whether it did
func (m *Modal) HandleKey(key string) bool {
	if key != KeyEscape {
		return false
	}
	return m.closeIfOpen()
}

// HandleClickOutside closes the modal after a click outside its boundary
// and reports whether it did
func (m *Modal) HandleClickOutside() bool {
	return m.closeIfOpen()
}

func (m *Modal) closeIfOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return false
	}
	m.open = false
	return true
}
