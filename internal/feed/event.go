package feed

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"labwatch/internal/timeutil"
)

// Attributes is the open string-keyed bag carried by feed events. The
// upstream attribute set is not contractually fixed, so values are accessed
// through typed helpers with safe fallbacks.
type Attributes map[string]any

// String returns the attribute as a string. The second return is false when
// the key is absent or the value is not a string.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Str is String without the presence flag.
func (a Attributes) Str(key string) string {
	s, _ := a.String(key)
	return s
}

// Number returns the attribute as a finite float64. JSON numbers decode as
// float64; numeric strings are accepted too since the feed is not strict
// about quoting.
func (a Attributes) Number(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Int is Number truncated to int.
func (a Attributes) Int(key string) (int, bool) {
	f, ok := a.Number(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Event is one decoded unit of the feed. Events are transient: they are
// consumed by the merge pipeline and never stored verbatim.
type Event struct {
	Timestamp   string     `json:"timestamp,omitempty"`
	Type        string     `json:"type"`
	Action      string     `json:"action"`
	ActorID     string     `json:"actor_id"`
	ActorName   string     `json:"actor_name,omitempty"`
	ActorFullID string     `json:"actor_full_id,omitempty"`
	Attributes  Attributes `json:"attributes,omitempty"`
}

// Event types dispatched by the pipeline. Anything else is ignored.
const (
	eventTypeContainer = "container"
	eventTypeInterface = "interface"
)

// decodeEvent parses one feed line. Callers must treat an error as
// log-and-drop: a malformed line never stops the pipeline.
func decodeEvent(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, fmt.Errorf("decode event line: %w", err)
	}
	return e, nil
}

// actionVerb reduces a free-form action to its leading verb:
// "health_status: healthy" -> "health_status", "exec_create: sh" -> "exec_create".
func actionVerb(action string) string {
	verb := strings.TrimSpace(strings.ToLower(action))
	if i := strings.IndexByte(verb, ':'); i >= 0 {
		verb = verb[:i]
	}
	return strings.TrimSpace(verb)
}

// isExecAction reports whether the action is an exec lifecycle event.
// Exec events are not container lifecycle transitions and are ignored wholesale.
func isExecAction(verb string) bool {
	return verb == "exec" || strings.HasPrefix(verb, "exec_")
}

// deriveState maps an action verb to a coarse lifecycle state. It is
// consulted only when the event carries no usable state attribute.
func deriveState(verb string) string {
	switch verb {
	case "die", "kill", "destroy", "stop":
		return StateExited
	case "pause":
		return StatePaused
	case "unpause", "start", "restart", "running":
		return StateRunning
	case "create":
		return StateCreated
	default:
		return ""
	}
}

// isTerminationAction reports actions whose status value is authoritative
// even when empty: an exited container must not keep a stale "Up 3 minutes".
func isTerminationAction(verb string) bool {
	return verb == "stop" || verb == "die" || verb == "kill"
}

// isFreshLifecycleAction reports actions that justify stamping a new
// started-at estimate when no uptime can be recovered from the status string.
func isFreshLifecycleAction(verb string) bool {
	switch verb {
	case "create", "start", "restart", "pause", "unpause":
		return true
	}
	return false
}

// eventTimeMillis extracts the event timestamp as epoch milliseconds,
// falling back to the clock when the event carries none or it is unparseable.
func eventTimeMillis(e Event, clock timeutil.Clock) int64 {
	ts := strings.TrimSpace(e.Timestamp)
	if ts == "" {
		return clock.Now().UnixMilli()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999 -0700 MST"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UnixMilli()
		}
	}
	if secs, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return secs * 1000
	}
	return clock.Now().UnixMilli()
}
