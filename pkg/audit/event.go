// Package audit defines the audit event model, the durable record shape, the
// error taxonomy, and the persistence boundary shared by every component of
// the logging pipeline. Keep it transport-agnostic so stores and sinks can
// fan out.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action classifies what the actor did. The set is closed so downstream
// tooling (SIEM forwarders, compliance reports) can rely on it; ActionOther
// is the escape hatch for events added before the taxonomy catches up.
type Action string

const (
	ActionCreate           Action = "CREATE"
	ActionRead             Action = "READ"
	ActionUpdate           Action = "UPDATE"
	ActionDelete           Action = "DELETE"
	ActionLogin            Action = "LOGIN"
	ActionLoginFailed      Action = "LOGIN_FAILED"
	ActionLogout           Action = "LOGOUT"
	ActionPasswordChange   Action = "PASSWORD_CHANGE"
	ActionPermissionChange Action = "PERMISSION_CHANGE"
	ActionConfigChange     Action = "CONFIG_CHANGE"
	ActionIntrusionAttempt Action = "INTRUSION_ATTEMPT"
	ActionExport           Action = "EXPORT"
	ActionOther            Action = "OTHER"
)

var knownActions = map[Action]struct{}{
	ActionCreate:           {},
	ActionRead:             {},
	ActionUpdate:           {},
	ActionDelete:           {},
	ActionLogin:            {},
	ActionLoginFailed:      {},
	ActionLogout:           {},
	ActionPasswordChange:   {},
	ActionPermissionChange: {},
	ActionConfigChange:     {},
	ActionIntrusionAttempt: {},
	ActionExport:           {},
	ActionOther:            {},
}

// Valid reports whether the action belongs to the closed taxonomy.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Level ranks how security-relevant an event is: LevelInfo < LevelWarning <
// LevelSecurity. The level drives the default retention period.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelSecurity Level = "SECURITY"
)

var levelRank = map[Level]int{
	LevelInfo:     0,
	LevelWarning:  1,
	LevelSecurity: 2,
}

// Valid reports whether the level is one of the three known levels.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// AtLeast reports whether l ranks at or above other.
func (l Level) AtLeast(other Level) bool {
	return levelRank[l] >= levelRank[other]
}

// Result records whether the audited operation succeeded.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
)

// Valid reports whether the result is one of the two known outcomes.
func (r Result) Valid() bool {
	return r == ResultSuccess || r == ResultFailure
}

// Retention defaults in years. Security-level events keep the extended
// period; everything else gets the base period.
const (
	DefaultRetentionYears  = 1
	SecurityRetentionYears = 10
)

// DefaultRetentionFor returns the retention period applied when the caller
// does not set one explicitly.
func DefaultRetentionFor(level Level) int {
	if level == LevelSecurity {
		return SecurityRetentionYears
	}
	return DefaultRetentionYears
}

// Event is a caller-reported occurrence recorded for compliance and
// forensics. The caller owns it until it is passed to Log; after that the
// batch buffer owns it until flush.
type Event struct {
	CorrelationID uuid.UUID
	Timestamp     time.Time
	UserID        string
	UserEmail     string
	UserIP        string
	Action        Action
	ResourceType  string
	ResourceID    string
	Level         Level
	Result        Result
	Message       string

	// Metadata stays plaintext and queryable. SensitiveData is encrypted
	// before persistence and never stored in the clear. Values must be
	// JSON-safe (string, number, bool, nil, nested map/slice).
	Metadata      map[string]any
	SensitiveData map[string]any

	RetentionYears int
}

// EventOption configures optional Event fields during construction.
type EventOption func(*Event)

// WithUser sets the acting user's identifier.
func WithUser(userID string) EventOption {
	return func(e *Event) { e.UserID = userID }
}

// WithUserEmail sets the acting user's email.
func WithUserEmail(email string) EventOption {
	return func(e *Event) { e.UserEmail = email }
}

// WithUserIP sets the client IP the action originated from.
func WithUserIP(ip string) EventOption {
	return func(e *Event) { e.UserIP = ip }
}

// WithResourceID sets the identifier of the affected resource.
func WithResourceID(resourceID string) EventOption {
	return func(e *Event) { e.ResourceID = resourceID }
}

// WithLevel overrides the default LevelInfo.
func WithLevel(level Level) EventOption {
	return func(e *Event) { e.Level = level }
}

// WithResult overrides the default ResultSuccess.
func WithResult(result Result) EventOption {
	return func(e *Event) { e.Result = result }
}

// WithMetadata attaches the plaintext, queryable payload.
func WithMetadata(metadata map[string]any) EventOption {
	return func(e *Event) { e.Metadata = metadata }
}

// WithSensitiveData attaches the payload that must be encrypted at rest.
func WithSensitiveData(data map[string]any) EventOption {
	return func(e *Event) { e.SensitiveData = data }
}

// WithCorrelationID threads causally related events together. A zero UUID is
// replaced with a generated one.
func WithCorrelationID(id uuid.UUID) EventOption {
	return func(e *Event) { e.CorrelationID = id }
}

// WithRetentionYears overrides the level-derived retention period.
func WithRetentionYears(years int) EventOption {
	return func(e *Event) { e.RetentionYears = years }
}

// WithTimestamp overrides the generation time. Intended for backfills and
// tests; normal callers let NewEvent stamp the event.
func WithTimestamp(t time.Time) EventOption {
	return func(e *Event) { e.Timestamp = t.UTC().Truncate(time.Microsecond) }
}

// NewEvent builds a validated audit event. Timestamps are UTC and truncated
// to microseconds so digests stay stable across storage engines that round
// below that precision.
func NewEvent(action Action, resourceType, message string, opts ...EventOption) (Event, error) {
	e := Event{
		CorrelationID: uuid.New(),
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
		Action:        action,
		ResourceType:  resourceType,
		Level:         LevelInfo,
		Result:        ResultSuccess,
		Message:       message,
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.CorrelationID == uuid.Nil {
		e.CorrelationID = uuid.New()
	}
	if e.RetentionYears == 0 {
		e.RetentionYears = DefaultRetentionFor(e.Level)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate enforces the event invariants. Violations are caller bugs and are
// reported as *InvalidEventError.
func (e *Event) Validate() error {
	if e.Message == "" {
		return &InvalidEventError{Field: "message", Reason: "must not be empty"}
	}
	if !e.Action.Valid() {
		return &InvalidEventError{Field: "action", Reason: "unrecognized action " + string(e.Action)}
	}
	if !e.Level.Valid() {
		return &InvalidEventError{Field: "level", Reason: "unrecognized level " + string(e.Level)}
	}
	if !e.Result.Valid() {
		return &InvalidEventError{Field: "result", Reason: "unrecognized result " + string(e.Result)}
	}
	if e.RetentionYears <= 0 {
		return &InvalidEventError{Field: "retention_years", Reason: "must be positive"}
	}
	// Unencodable map values are a caller bug. Rejecting them here keeps them
	// out of the buffer, where they would fail on every flush and block the
	// events queued behind them.
	if _, err := CanonicalizeMap(e.Metadata); err != nil {
		return &InvalidEventError{Field: "metadata", Reason: "values must be JSON-safe: " + err.Error()}
	}
	if _, err := CanonicalizeMap(e.SensitiveData); err != nil {
		return &InvalidEventError{Field: "sensitive_data", Reason: "values must be JSON-safe: " + err.Error()}
	}
	return nil
}
