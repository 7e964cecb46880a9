package views

import (
	"sync"

	"github.com/payback159/raidsplit/pkg/models"
	"github.com/payback159/raidsplit/pkg/settings"
)

// SettingsForm is the view-model of the settings dialog
type SettingsForm struct {
	Open          bool
	Current       models.Settings
	SplitOptions  []int
	HealerOptions []int
	Problems      []string
}

// SettingsModalView wraps the settings dialog around a settings store
type SettingsModalView struct {
	*Modal
	store *settings.Store

	mu       sync.Mutex
	problems []string
}

// NewSettingsModalView creates a closed settings dialog for store
func NewSettingsModalView(store *settings.Store) *SettingsModalView {
	return &SettingsModalView{
		Modal: NewModal("settings"),
		store: store,
	}
}

// Open shows the dialog with a clean problem list
func (v *SettingsModalView) Open() {
	v.mu.Lock()
	v.problems = nil
	v.mu.Unlock()
	v.Modal.Open()
}

// Submit applies p. The dialog closes on success and stays open showing
// the problems otherwise.
func (v *SettingsModalView) Submit(p settings.Patch) bool {
	ok, problems := v.store.Update(p)

	v.mu.Lock()
	v.problems = problems
	v.mu.Unlock()

	if ok {
		v.Close()
	}
	return ok
}

// Form returns the dialog's current view-model
func (v *SettingsModalView) Form() SettingsForm {
	v.mu.Lock()
	problems := append([]string(nil), v.problems...)
	v.mu.Unlock()

	return SettingsForm{
		Open:          v.IsOpen(),
		Current:       v.store.Get(),
		SplitOptions:  intRange(models.MinSplits, models.MaxSplits),
		HealerOptions: intRange(models.MinHealers, models.MaxHealers),
		Problems:      problems,
	}
}

func intRange(lo, hi int) []int {
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}
