package render

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Text shows strings verbatim and pretty-prints everything else as indented
// JSON. Characters like < and & are kept as-is; HTML output escapes them later.
func Text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimRight(b.Bytes(), "\n"))
}

// Severity selects the style of a transient message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Class is the CSS class the dashboard uses for the severity.
func (s Severity) Class() string {
	switch s {
	case SeveritySuccess, SeverityError:
		return string(s) + "-message"
	default:
		return "info-message"
	}
}

// Message is a transient, auto-dismissed notice.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

func Info(format string, args ...any) Message {
	return Message{Severity: SeverityInfo, Text: fmt.Sprintf(format, args...)}
}

func Success(format string, args ...any) Message {
	return Message{Severity: SeveritySuccess, Text: fmt.Sprintf(format, args...)}
}

func Error(format string, args ...any) Message {
	return Message{Severity: SeverityError, Text: fmt.Sprintf(format, args...)}
}

// Badge is a short status label, e.g. the backend health indicator.
type Badge struct {
	Text string `json:"text"`
	OK   bool   `json:"ok"`
}

// Class is "success" or "danger".
func (b Badge) Class() string {
	if b.OK {
		return "success"
	}
	return "danger"
}
