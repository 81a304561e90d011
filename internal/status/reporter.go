package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity is the severity of a status item.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// ParseSeverity parses a severity name (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityFatal:
		return sev, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

// Well-known categories.
const (
	CategoryDevice    = "device"
	CategoryMQTT      = "mqtt"
	CategoryScheduler = "scheduler"
	CategoryUpdate    = "update"
	CategorySystem    = "system"
)

// Item is a status report.
type Item struct {
	Category string
	Severity Severity
	Key      string

	// Message is the report text. When empty, Err's message is used.
	Message string
	Err     error

	// CorrelationID links related reports. A new id is generated when empty.
	CorrelationID string
}

// Record is a persisted status item.
type Record struct {
	ID            int64
	CorrelationID string
	Category      string
	Severity      Severity
	Key           string
	Message       string
	Detail        string
	CreatedAt     time.Time
}

// Store persists status records.
type Store interface {
	Save(ctx context.Context, r Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Logger defines the logging interface used by the Reporter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// saveTimeout bounds a single persistence attempt.
const saveTimeout = 2 * time.Second

// Reporter logs and persists status items.
type Reporter struct {
	logger Logger
	store  Store
	now    func() time.Time
}

// NewReporter creates a reporter. store may be nil to only log.
func NewReporter(logger Logger, store Store) *Reporter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Reporter{
		logger: logger,
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ReportItem records item and returns its correlation id.
//
// The item is persisted even when ctx is already cancelled, so shutdown
// errors are not lost.
func (r *Reporter) ReportItem(ctx context.Context, item Item) string {
	if r == nil {
		return item.CorrelationID
	}

	id := item.CorrelationID
	if id == "" {
		id = uuid.NewString()
	}
	severity := item.Severity
	if severity == "" {
		severity = SeverityError
	}

	message := item.Message
	detail := ""
	if item.Err != nil {
		detail = item.Err.Error()
		if message == "" {
			message = detail
		}
	}

	args := []any{
		"category", item.Category,
		"key", item.Key,
		"correlation_id", id,
	}
	if item.Err != nil {
		args = append(args, "error", item.Err)
	}
	switch severity {
	case SeverityInfo:
		r.logger.Info(message, args...)
	case SeverityWarning:
		r.logger.Warn(message, args...)
	default:
		r.logger.Error(message, append(args, "severity", string(severity))...)
	}

	if r.store == nil {
		return id
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := r.store.Save(saveCtx, Record{
		CorrelationID: id,
		Category:      item.Category,
		Severity:      severity,
		Key:           item.Key,
		Message:       message,
		Detail:        detail,
		CreatedAt:     r.now(),
	}); err != nil {
		r.logger.Warn("persisting status report failed", "correlation_id", id, "error", err)
	}
	return id
}

// Recent returns the most recent persisted records, newest first. It returns
// nothing when no store is configured.
func (r *Reporter) Recent(ctx context.Context, limit int) ([]Record, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	return r.store.Recent(ctx, limit)
}
