package agent

import (
	"encoding/json"
	"strings"

	"github.com/spigell/resume-autofill/internal/runlog"
)

// Sink receives run log entries as the agent reports them.
type Sink interface {
	Add(runlog.Entry)
}

type event struct {
	Step       *int   `json:"step"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	Detail     string `json:"detail"`
	Screenshot string `json:"screenshot"`
	Done       bool   `json:"done"`
}

// ParseEvent converts one stdout line of the agent into a run log entry.
// JSON objects with an action or status are step events, anything else is a note.
func ParseEvent(line string) (runlog.Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return runlog.Entry{}, false
	}

	if strings.HasPrefix(line, "{") {
		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err == nil && (ev.Action != "" || ev.Status != "" || ev.Done) {
			entry := runlog.Entry{
				Action:     ev.Action,
				Status:     normalizeStatus(ev.Status),
				Detail:     ev.Detail,
				Screenshot: ev.Screenshot,
			}
			if ev.Step != nil {
				entry.Step = *ev.Step
			}
			if ev.Done && entry.Action == "" {
				entry.Action = "done"
			}
			return entry, true
		}
	}

	return runlog.Entry{Action: "note", Status: runlog.StatusNote, Detail: line}, true
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ok", "success", "succeeded", "done":
		return runlog.StatusOK
	case "error", "failed", "failure", "fail":
		return runlog.StatusFailed
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}
