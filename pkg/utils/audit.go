package utils

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Audit severity levels
type AuditSeverity string

const (
	AuditInfo     AuditSeverity = "INFO"
	AuditWarn     AuditSeverity = "WARN"
	AuditError    AuditSeverity = "ERROR"
	AuditSecurity AuditSeverity = "SECURITY"
)

var ErrAuditLogClosed = errors.New("audit: log is closed")

// AuditConfig configures the audit logger
type AuditConfig struct {
	// FilePath is the audit log destination; empty means stdout.
	FilePath       string
	EnableRotation bool
	MaxSize        int // MB
	MaxBackups     int
	MaxAge         int // days
	Compress       bool

	// Static fields
	AgentID   string
	Component string
}

// DefaultAuditConfig returns sensible defaults
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		FilePath:       getEnvOrDefault("AUDIT_FILE_PATH", ""),
		EnableRotation: true,
		MaxSize:        100,
		MaxBackups:     30,
		MaxAge:         90,
		Compress:       true,
		Component:      "crossing",
	}
}

// AuditRecord is a single audit log entry
type AuditRecord struct {
	Timestamp string                 `json:"ts"`
	Sequence  uint64                 `json:"seq"`
	Event     string                 `json:"event"`
	Severity  AuditSeverity          `json:"severity"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// AuditLogger writes sequenced protocol events as JSON lines. Writes are
// serialized; the sequence number makes record loss detectable downstream.
type AuditLogger struct {
	config  *AuditConfig
	encoder *json.Encoder
	closer  io.Closer

	sequence uint64
	mu       sync.Mutex
	closed   atomic.Bool
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer = os.Stdout
	var closer io.Closer

	if config.FilePath != "" {
		if config.EnableRotation {
			rotator := &lumberjack.Logger{
				Filename:   config.FilePath,
				MaxSize:    config.MaxSize,
				MaxBackups: config.MaxBackups,
				MaxAge:     config.MaxAge,
				Compress:   config.Compress,
			}
			writer = rotator
			closer = rotator
		} else {
			f, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return nil, err
			}
			writer = f
			closer = f
		}
	}

	return &AuditLogger{
		config:  config,
		encoder: json.NewEncoder(writer),
		closer:  closer,
	}, nil
}

// Info records an informational audit event
func (a *AuditLogger) Info(event string, fields map[string]interface{}) error {
	return a.record(AuditInfo, event, fields)
}

// Warn records a warning audit event
func (a *AuditLogger) Warn(event string, fields map[string]interface{}) error {
	return a.record(AuditWarn, event, fields)
}

// Error records an error audit event
func (a *AuditLogger) Error(event string, fields map[string]interface{}) error {
	return a.record(AuditError, event, fields)
}

// Security records a security-relevant audit event
func (a *AuditLogger) Security(event string, fields map[string]interface{}) error {
	return a.record(AuditSecurity, event, fields)
}

func (a *AuditLogger) record(severity AuditSeverity, event string, fields map[string]interface{}) error {
	if a.closed.Load() {
		return ErrAuditLogClosed
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.sequence++
	return a.encoder.Encode(AuditRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Sequence:  a.sequence,
		Event:     event,
		Severity:  severity,
		AgentID:   a.config.AgentID,
		Component: a.config.Component,
		Fields:    fields,
	})
}

// Close stops the audit logger and releases the underlying writer.
func (a *AuditLogger) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
