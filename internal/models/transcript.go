package models

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Segment is a timestamped span of recognized text. Times are in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is an ordered list of segments.
// Its text form is the contract between pipeline steps on disk.
type Transcript struct {
	Segments []Segment `json:"segments"`
}

var segmentLine = regexp.MustCompile(`\[(.+?) - (.+?)]\s*(.*)`)

// String renders one "[start - end] text" line per segment.
func (t Transcript) String() string {
	lines := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		lines = append(lines, fmt.Sprintf("[%s - %s] %s", FormatTimestamp(s.Start), FormatTimestamp(s.End), s.Text))
	}
	return strings.Join(lines, "\n")
}

// ParseTranscript reads the text form back into segments.
// Lines that are not segments (including provider error markers) are skipped.
func ParseTranscript(content string) Transcript {
	var segments []Segment
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		m := segmentLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, err := ParseTimestamp(m[1])
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(m[2])
		if err != nil {
			continue
		}
		segments = append(segments, Segment{Start: start, End: end, Text: strings.TrimSpace(m[3])})
	}
	return Transcript{Segments: segments}
}

// FormatTimestamp renders seconds as H:MM:SS.mmm, or M:SS.mmm under one hour.
func FormatTimestamp(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	frac := ms % 1000
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, frac)
	}
	return fmt.Sprintf("%d:%02d.%03d", m, s, frac)
}

// ParseTimestamp accepts H:MM:SS.mmm or M:SS.mmm.
func ParseTimestamp(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	var hours, minutes int64
	var secPart string
	var err error

	switch len(parts) {
	case 3:
		if hours, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0, fmt.Errorf("parse hours %q: %w", value, err)
		}
		if minutes, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return 0, fmt.Errorf("parse minutes %q: %w", value, err)
		}
		secPart = parts[2]
	case 2:
		if minutes, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0, fmt.Errorf("parse minutes %q: %w", value, err)
		}
		secPart = parts[1]
	default:
		return 0, fmt.Errorf("parse timestamp %q: unexpected format", value)
	}

	ms, err := parseSecondsMillis(secPart)
	if err != nil {
		return 0, fmt.Errorf("parse seconds %q: %w", value, err)
	}
	total := (hours*3600+minutes*60)*1000 + ms
	return float64(total) / 1000, nil
}

// parseSecondsMillis parses "SS.mmm" into whole milliseconds without float drift.
func parseSecondsMillis(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	if len(frac) > 3 {
		frac = frac[:3]
	}
	for len(frac) < 3 {
		frac += "0"
	}
	ms, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	return sec*1000 + ms, nil
}
