package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one kind of catalog operation.
type AuditEventType string

const (
	AuditBuild  AuditEventType = "build"
	AuditRender AuditEventType = "render"

	AuditHarvestStart    AuditEventType = "harvest_start"
	AuditHarvestItem     AuditEventType = "harvest_item"
	AuditHarvestComplete AuditEventType = "harvest_complete"

	AuditFetch AuditEventType = "fetch"

	AuditPublish AuditEventType = "publish"

	AuditRebuild AuditEventType = "rebuild"

	AuditError AuditEventType = "error"
)

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"` // Unix milliseconds
	EventType  AuditEventType `json:"event"`
	Category   string         `json:"cat,omitempty"`
	RunID      string         `json:"run,omitempty"`
	Target     string         `json:"target,omitempty"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"dur_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger writes events, optionally tagged with a run id.
type AuditLogger struct {
	runID string
}

// InitAudit opens <workspace>/.catalog/logs/<date>_audit.log. It is a no-op
// unless debug mode is on.
func InitAudit() error {
	if !IsDebugMode() || logsDir == "" {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	path := filepath.Join(logsDir, time.Now().Format("2006-01-02")+"_audit.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns an untagged audit logger.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithRun returns an audit logger whose events carry runID.
func AuditWithRun(runID string) *AuditLogger {
	return &AuditLogger{runID: runID}
}

// Log writes an audit event as one JSON line.
func (a *AuditLogger) Log(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" {
		event.RunID = a.runID
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// Build records a collection build.
func (a *AuditLogger) Build(products, institutions, categories, nodes int, d time.Duration, err error) {
	a.Log(AuditEvent{
		EventType:  AuditBuild,
		Category:   string(CategoryBuild),
		Success:    err == nil,
		DurationMs: d.Milliseconds(),
		Error:      errString(err),
		Fields: map[string]any{
			"products":     products,
			"institutions": institutions,
			"categories":   categories,
			"nodes":        nodes,
		},
	})
}

// Render records a site render into dir.
func (a *AuditLogger) Render(dir string, pages int, d time.Duration) {
	a.Log(AuditEvent{
		EventType:  AuditRender,
		Category:   string(CategoryRender),
		Target:     dir,
		Success:    true,
		DurationMs: d.Milliseconds(),
		Fields:     map[string]any{"pages": pages},
	})
}

// HarvestStart records the start of a harvest run.
func (a *AuditLogger) HarvestStart(dois int, force bool) {
	a.Log(AuditEvent{
		EventType: AuditHarvestStart,
		Category:  string(CategoryHarvest),
		Success:   true,
		Fields:    map[string]any{"dois": dois, "force": force},
	})
}

// HarvestItem records the outcome of one DOI.
func (a *AuditLogger) HarvestItem(doi, outcome string, err error) {
	a.Log(AuditEvent{
		EventType: AuditHarvestItem,
		Category:  string(CategoryHarvest),
		Target:    doi,
		Success:   err == nil,
		Error:     errString(err),
		Fields:    map[string]any{"outcome": outcome},
	})
}

// HarvestComplete records the totals of a finished run.
func (a *AuditLogger) HarvestComplete(saved, unchanged, missing, failed int, d time.Duration) {
	a.Log(AuditEvent{
		EventType:  AuditHarvestComplete,
		Category:   string(CategoryHarvest),
		Success:    true,
		DurationMs: d.Milliseconds(),
		Fields: map[string]any{
			"saved":     saved,
			"unchanged": unchanged,
			"missing":   missing,
			"failed":    failed,
		},
	})
}

// Fetch records a reference list download.
func (a *AuditLogger) Fetch(url string, count int, d time.Duration, err error) {
	a.Log(AuditEvent{
		EventType:  AuditFetch,
		Category:   string(CategoryOBIS),
		Target:     url,
		Success:    err == nil,
		DurationMs: d.Milliseconds(),
		Error:      errString(err),
		Fields:     map[string]any{"count": count},
	})
}

// Publish records an upload of the site.
func (a *AuditLogger) Publish(driver string, uploaded, deleted int, bytes int64, d time.Duration, err error) {
	a.Log(AuditEvent{
		EventType:  AuditPublish,
		Category:   string(CategoryPublish),
		Target:     driver,
		Success:    err == nil,
		DurationMs: d.Milliseconds(),
		Error:      errString(err),
		Fields:     map[string]any{"uploaded": uploaded, "deleted": deleted, "bytes": bytes},
	})
}

// Rebuild records a watch-triggered rebuild.
func (a *AuditLogger) Rebuild(changed []string, err error) {
	a.Log(AuditEvent{
		EventType: AuditRebuild,
		Category:  string(CategoryWatch),
		Success:   err == nil,
		Error:     errString(err),
		Fields:    map[string]any{"changed": changed},
	})
}

// Error records a failure outside the operations above.
func (a *AuditLogger) Error(category Category, err error) {
	a.Log(AuditEvent{
		EventType: AuditError,
		Category:  string(category),
		Error:     errString(err),
	})
}
