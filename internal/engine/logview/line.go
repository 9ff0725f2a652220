package logview

import (
	"regexp"
	"strings"
	"time"
)

// Docker prefixes each line with an RFC 3339 timestamp carrying fractional
// seconds, for example "2024-01-15T12:34:56.789012345Z message".
var timestampRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})\.\d+Z?\s*(.*)`)

// Line is one parsed line of container output.
type Line struct {
	Container string
	// Timestamp is zero when the line has no recognized prefix.
	Timestamp time.Time
	// Clock is the HH:MM:SS part of the timestamp, empty when absent.
	Clock   string
	Message string
	Raw     string
}

// HasTime reports whether the line carried a recognized timestamp.
func (l Line) HasTime() bool {
	return l.Clock != ""
}

// ParseLine splits a raw line into its timestamp and message. Lines without a
// recognized timestamp keep the whole text as the message.
func ParseLine(container, raw string) Line {
	l := Line{Container: container, Message: raw, Raw: raw}
	m := timestampRe.FindStringSubmatch(raw)
	if m == nil {
		return l
	}
	l.Clock = m[1][11:19]
	l.Message = m[2]
	if ts, err := time.Parse("2006-01-02T15:04:05", m[1]); err == nil {
		l.Timestamp = ts
	}
	return l
}

// splitLines splits a text blob into non-empty lines.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, "\n")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSuffix(p, "\r")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Family groups containers by name prefix so that related services share a
// color. Unknown containers belong to "other".
func Family(name string) string {
	for _, f := range families {
		if strings.HasPrefix(name, f.prefix) {
			return f.name
		}
	}
	return "other"
}

var families = []struct {
	prefix string
	name   string
}{
	{"scanner", "scanner"},
	{"http_", "http"},
	{"ftp_", "ftp"},
	{"ssh_", "ssh"},
	{"telnet_", "telnet"},
	{"mqtt_", "mqtt"},
	{"modbus_", "modbus"},
	{"coap_", "coap"},
	{"dashboard", "dashboard"},
}
