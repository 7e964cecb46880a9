package downloads

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/payback159/raidsplit/pkg/export"
	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
	"github.com/payback159/raidsplit/pkg/security"
	"github.com/payback159/raidsplit/pkg/session"
)

const (
	csvFilename   = "raid-splits.csv"
	excelFilename = "raid-splits.xlsx"
	excelMIME     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// GroupsSource returns the groups a session currently displays. The
// boolean is false when the session is unknown.
type GroupsSource func(sessionID string) ([]models.Group, bool)

// writeResponseSafe safely writes response with error handling
func writeResponseSafe(w http.ResponseWriter, buffer *bytes.Buffer, ip string) {
	if _, err := w.Write(buffer.Bytes()); err != nil {
		logging.LogError("Failed to write response", err, "ip", ip)
		// Response already started, can't send error status
	}
}

// getSessionIDFromCookie reads the session ID from an HttpOnly cookie
func getSessionIDFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setDownloadHeaders sets common security and caching headers for downloads
func setDownloadHeaders(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// loadGroups resolves the requesting session's groups or answers the
// request with an error
func loadGroups(w http.ResponseWriter, r *http.Request, source GroupsSource, kind string) ([]models.Group, string, bool) {
	sessionID := getSessionIDFromCookie(r)
	ip := security.GetClientIP(r)

	logging.LogInfo("Groups download requested",
		"format", kind,
		"session_id_length", len(sessionID),
		"ip", ip)

	groups, exists := source(sessionID)
	if !exists || len(groups) == 0 {
		logging.LogWarn("Groups download requested but no data available",
			"format", kind,
			"ip", ip,
			"session_exists", exists)
		http.Error(w, "No groups available for download", http.StatusBadRequest)
		return nil, ip, false
	}
	return groups, ip, true
}

// HandleGroupsCSV serves the displayed groups as a labelled CSV grid
func HandleGroupsCSV(w http.ResponseWriter, r *http.Request, source GroupsSource) {
	start := time.Now()
	groups, ip, ok := loadGroups(w, r, source, "csv")
	if !ok {
		return
	}

	buffer := bytes.NewBufferString(export.BuildDownloadCSV(groups))

	setDownloadHeaders(w, "text/csv; charset=utf-8", csvFilename)
	writeResponseSafe(w, buffer, ip)

	logging.LogFileOperation("csv_download", csvFilename, int64(buffer.Len()), time.Since(start), true,
		"ip", ip,
		"group_count", len(groups))
}

// HandleGroupsExcel serves the displayed groups as an xlsx workbook
func HandleGroupsExcel(w http.ResponseWriter, r *http.Request, source GroupsSource) {
	start := time.Now()
	groups, ip, ok := loadGroups(w, r, source, "xlsx")
	if !ok {
		return
	}

	f, err := export.BuildWorkbook(groups)
	if err != nil {
		logging.LogError("Failed to build workbook", err, "ip", ip, "group_count", len(groups))
		http.Error(w, "Error creating Excel file", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.LogError("Failed to close Excel file", err, "ip", ip)
		}
	}()

	buffer, err := f.WriteToBuffer()
	if err != nil {
		logging.LogError("Failed to write Excel buffer", err, "ip", ip)
		http.Error(w, "Error creating Excel file", http.StatusInternalServerError)
		return
	}

	setDownloadHeaders(w, excelMIME, excelFilename)
	writeResponseSafe(w, buffer, ip)

	logging.LogFileOperation("excel_download", excelFilename, int64(buffer.Len()), time.Since(start), true,
		"ip", ip,
		"group_count", len(groups))
}
