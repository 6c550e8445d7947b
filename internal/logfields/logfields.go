package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyEntityID   = "entity_id"
	KeyEntityName = "entity_name"
	KeyStage      = "stage"
	KeyFromStage  = "from_stage"
	KeyToStage    = "to_stage"
	KeyCause      = "cause"
	KeyTimerID    = "timer_id"
	KeyTimerKind  = "timer_kind"
	KeyRemaining  = "remaining"
	KeyCatchUp    = "catch_up"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyScheduleID = "schedule_id"
	KeySchedule   = "schedule_name"
	KeySink       = "sink"
	KeyAttempt    = "attempt"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyUserAgent  = "user_agent"
	KeyRequestID  = "request_id"
	KeyResponseSz = "response_size"
	KeyContentLen = "content_length"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func EntityID(id string) slog.Attr        { return slog.String(KeyEntityID, id) }
func EntityName(n string) slog.Attr       { return slog.String(KeyEntityName, n) }
func Stage(name string) slog.Attr         { return slog.String(KeyStage, name) }
func FromStage(name string) slog.Attr     { return slog.String(KeyFromStage, name) }
func ToStage(name string) slog.Attr       { return slog.String(KeyToStage, name) }
func Cause(c string) slog.Attr            { return slog.String(KeyCause, c) }
func TimerID(id string) slog.Attr         { return slog.String(KeyTimerID, id) }
func TimerKind(k string) slog.Attr        { return slog.String(KeyTimerKind, k) }
func Remaining(d time.Duration) slog.Attr { return slog.Duration(KeyRemaining, d) }
func CatchUp(b bool) slog.Attr            { return slog.Bool(KeyCatchUp, b) }
func Count(n int) slog.Attr               { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr     { return slog.Float64(KeyDurationMS, ms) }
func ScheduleID(id string) slog.Attr      { return slog.String(KeyScheduleID, id) }
func ScheduleName(n string) slog.Attr     { return slog.String(KeySchedule, n) }
func Sink(name string) slog.Attr          { return slog.String(KeySink, name) }
func Attempt(n int) slog.Attr             { return slog.Int(KeyAttempt, n) }
func Path(p string) slog.Attr             { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr           { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr           { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr       { return slog.String(KeyRemoteAddr, a) }
func UserAgent(ua string) slog.Attr       { return slog.String(KeyUserAgent, ua) }
func RequestID(id string) slog.Attr       { return slog.String(KeyRequestID, id) }
func ResponseSize(n int) slog.Attr        { return slog.Int(KeyResponseSz, n) }
func ContentLength(n int64) slog.Attr     { return slog.Int64(KeyContentLen, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
