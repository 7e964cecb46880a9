package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

// ErrNoGroups is returned when there is nothing to export
var ErrNoGroups = errors.New("no groups to export")

// ErrUnsupported is returned by a clipboard that lacks a mechanism
var ErrUnsupported = errors.New("clipboard mechanism not supported")

// Clipboard is a system clipboard reachable through three mechanisms,
// tried in order from richest to most basic
type Clipboard interface {
	// WriteRich stores an HTML and a plain-text representation together
	WriteRich(ctx context.Context, html, text string) error
	// WriteText stores a single plain-text entry
	WriteText(ctx context.Context, text string) error
	// CopySelection selects text in an off-screen element and copies it
	CopySelection(ctx context.Context, text string) error
}

// Notifier shows the outcome of an export to the user
type Notifier interface {
	Success(text string) models.Message
	Error(text string) models.Message
}

// Exporter copies groups to a clipboard
type Exporter struct {
	clipboard Clipboard
	notifier  Notifier
}

// NewExporter creates an exporter; notifier may be nil
func NewExporter(clipboard Clipboard, notifier Notifier) *Exporter {
	return &Exporter{clipboard: clipboard, notifier: notifier}
}

type attempt struct {
	mechanism string
	run       func(context.Context) error
}

// ExportToClipboard copies groups in the given format and reports whether
// any clipboard mechanism succeeded. Empty groups fail without touching
// the clipboard.
func (e *Exporter) ExportToClipboard(ctx context.Context, groups []models.Group, format Format) bool {
	if len(groups) == 0 {
		logging.LogExport(string(format), "none", 0, 0, false, "error", ErrNoGroups.Error())
		e.fail("No groups to export. Generate splits first.")
		return false
	}
	if format != FormatCSV {
		format = FormatHTML
	}

	var payload string
	var attempts []attempt

	switch format {
	case FormatCSV:
		payload = BuildCSV(groups)
		attempts = []attempt{
			{"text", func(ctx context.Context) error { return e.clipboard.WriteText(ctx, payload) }},
			{"selection", func(ctx context.Context) error { return e.clipboard.CopySelection(ctx, payload) }},
		}
	default:
		doc, err := BuildHTML(groups)
		if err != nil {
			logging.LogError("Failed to build export table", err, "groups", len(groups))
			e.fail("Export failed: could not build the table.")
			return false
		}
		payload = doc
		// The rich write needs the plain-text twin.
		if text, err := HTMLToText(doc); err != nil {
			logging.LogWarn("Failed to derive plain text from export table", "error", err.Error())
		} else {
			attempts = append(attempts, attempt{"rich", func(ctx context.Context) error {
				return e.clipboard.WriteRich(ctx, doc, text)
			}})
		}
		attempts = append(attempts,
			attempt{"text", func(ctx context.Context) error { return e.clipboard.WriteText(ctx, doc) }},
			attempt{"selection", func(ctx context.Context) error { return e.clipboard.CopySelection(ctx, doc) }},
		)
	}

	var errs []error
	for _, a := range attempts {
		err := a.run(ctx)
		if err == nil {
			logging.LogExport(string(format), a.mechanism, len(groups), len(payload), true,
				"fallbacks", len(errs))
			if e.notifier != nil {
				e.notifier.Success(fmt.Sprintf("Copied %d groups to clipboard (%s)", len(groups), format))
			}
			return true
		}
		logging.LogDebug("Clipboard mechanism failed", "mechanism", a.mechanism, "error", err.Error())
		errs = append(errs, fmt.Errorf("%s: %w", a.mechanism, err))
	}

	logging.LogExport(string(format), "exhausted", len(groups), len(payload), false,
		"error", errors.Join(errs...).Error())
	e.fail("Could not copy to clipboard. Try the download instead.")
	return false
}

func (e *Exporter) fail(msg string) {
	if e.notifier != nil {
		e.notifier.Error(msg)
	}
}
