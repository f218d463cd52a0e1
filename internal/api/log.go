package api

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"trackback/pkg/logging"
)

// maxAttrLen drops attribute values that would not fit a status line.
const maxAttrLen = 20

var logAttr = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// LogLine is a slog text line broken up for the ground station.
type LogLine struct {
	Time    string   `json:"time,omitempty"`
	Level   string   `json:"level,omitempty"`
	Message string   `json:"message"`
	Attrs   []string `json:"attrs,omitempty"`
	Text    string   `json:"text"`
}

// handleLatestLog returns the last captured log line.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	line := parseLogLine(logging.GlobalLogCapture.GetLastLine())
	writeJSON(w, http.StatusOK, map[string]any{
		"log":  line.Text,
		"line": line,
	})
}

// handleEventLog returns the most recent flight event lines, oldest first.
// GET /api/log/events?n=N
func handleEventLog(w http.ResponseWriter, r *http.Request) {
	n := 0
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = v
	}
	lines := logging.GlobalEventCapture.Lines(n)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"events": lines})
}

// parseLogLine splits a slog text line into time (HH:MM:SS), level, message
// and sorted short attributes. Lines without a msg key pass through as text.
func parseLogLine(raw string) LogLine {
	out := LogLine{Text: raw, Message: raw}
	var haveMsg bool

	for _, m := range logAttr.FindAllStringSubmatch(raw, -1) {
		key, val := m[1], m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if ts, err := time.Parse(time.RFC3339, val); err == nil {
				out.Time = ts.Format("15:04:05")
			}
		case "level":
			out.Level = val
		case "msg":
			out.Message = val
			haveMsg = true
		case "source":
		default:
			if len(val) <= maxAttrLen {
				out.Attrs = append(out.Attrs, key+"="+val)
			}
		}
	}
	if !haveMsg {
		return LogLine{Text: raw, Message: raw}
	}

	sort.Strings(out.Attrs)
	text := out.Message
	if out.Time != "" {
		text = out.Time + " " + text
	}
	if len(out.Attrs) > 0 {
		text += " (" + strings.Join(out.Attrs, ", ") + ")"
	}
	out.Text = text
	return out
}
