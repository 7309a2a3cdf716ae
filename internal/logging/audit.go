// Audit logging: a durable JSON-lines record of every significant pipeline
// event. Unlike the per-category text logs, the audit log is meant to be
// machine-parsed after the fact for impact analysis.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType identifies what happened.
type AuditEventType string

const (
	// Cycle lifecycle
	AuditCycleStart    AuditEventType = "cycle_start"
	AuditCycleComplete AuditEventType = "cycle_complete"
	AuditCycleError    AuditEventType = "cycle_error"

	// Pipeline verdicts
	AuditSecurityBlock AuditEventType = "security_block"
	AuditSecurityAllow AuditEventType = "security_allow"
	AuditSyntaxReject  AuditEventType = "syntax_reject"
	AuditTestVerdict   AuditEventType = "test_verdict"

	// Ledger
	AuditModification AuditEventType = "modification"

	// Deliberation
	AuditActionSelected AuditEventType = "action_selected"
	AuditEpisode        AuditEventType = "episode"

	// External service
	AuditSuggestRequest  AuditEventType = "suggest_request"
	AuditSuggestResponse AuditEventType = "suggest_response"
	AuditSuggestError    AuditEventType = "suggest_error"
)

// AuditEvent is one structured audit log entry, written as a JSON line.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat,omitempty"`
	SessionID  string                 `json:"session,omitempty"`
	CycleID    int                    `json:"cycle,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
	auditOnce sync.Once
	auditLog  *AuditLogger
)

// AuditLogger writes audit events, optionally scoped to a session.
type AuditLogger struct {
	sessionID string
}

// InitAudit opens the audit log file. No-op when logging is disabled.
func InitAudit() error {
	if !enabled {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	fmt.Fprintf(auditFile, "# audit log started %s\n", time.Now().Format(time.RFC3339))
	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	auditOnce.Do(func() {
		auditLog = &AuditLogger{}
	})
	return auditLog
}

// AuditWithSession returns an audit logger scoped to a session.
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes an audit event as a JSON line.
func (a *AuditLogger) Log(event AuditEvent) {
	if !enabled {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}
