package views

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/payback159/raidsplit/pkg/calculator"
	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

// StatsFetcher loads roster-wide distributions
type StatsFetcher interface {
	RosterStats(ctx context.Context) (models.RosterStats, error)
}

// SplitDetailsModalView shows one group's distributions against the
// roster-wide expectation
type SplitDetailsModalView struct {
	*Modal
	stats  StatsFetcher
	toasts *Toasts

	mu      sync.Mutex
	details *calculator.SplitDetails
}

// NewSplitDetailsModalView creates a closed details dialog
func NewSplitDetailsModalView(stats StatsFetcher, toasts *Toasts) *SplitDetailsModalView {
	return &SplitDetailsModalView{
		Modal:  NewModal("split-details"),
		stats:  stats,
		toasts: toasts,
	}
}

// Open fetches the roster stats and opens the dialog for group. Stats are
// fetched on every open. When the fetch fails an error toast is shown and
// the dialog stays closed.
func (v *SplitDetailsModalView) Open(ctx context.Context, group models.Group, numGroups int) error {
	start := time.Now()
	stats, err := v.stats.RosterStats(ctx)
	if err != nil {
		logging.LogError("Failed to load roster stats for split details", err,
			"group_id", group.GroupID)
		if v.toasts != nil {
			v.toasts.Error(fmt.Sprintf("Could not load split details: %v", err))
		}
		return err
	}

	details := calculator.CompareWithRoster(group, stats, numGroups)

	v.mu.Lock()
	v.details = &details
	v.mu.Unlock()
	v.Modal.Open()

	logging.LogPerformance("split_details", time.Since(start), "group_id", group.GroupID)
	return nil
}

// Details returns the data of the open dialog
func (v *SplitDetailsModalView) Details() (calculator.SplitDetails, bool) {
	if !v.IsOpen() {
		return calculator.SplitDetails{}, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.details == nil {
		return calculator.SplitDetails{}, false
	}
	return *v.details, true
}
