package domain

import "time"

type InvocationStatus string

const (
	InvocationSuccess InvocationStatus = "success"
	InvocationError   InvocationStatus = "error"
)

// ToolInvocationAudit describes one tool call. Arguments holds a summary, never raw secrets.
type ToolInvocationAudit struct {
	Tool      string
	RequestID string
	ClientID  string
	Status    InvocationStatus
	Duration  time.Duration
	Arguments map[string]any
	Error     string
	Timestamp time.Time
}
