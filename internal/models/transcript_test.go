package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"zero", 0, "0:00.000"},
		{"sub minute", 4.319, "0:04.319"},
		{"minutes", 754.5, "12:34.500"},
		{"just under an hour", 3599.999, "59:59.999"},
		{"one hour", 3600, "1:00:00.000"},
		{"hours", 3723.004, "1:02:03.004"},
		{"double digit hours", 36000.25, "10:00:00.250"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(tt.seconds))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0:04.319", 4.319, false},
		{"1:02:03.004", 3723.004, false},
		{"12:34.5", 754.5, false},
		{"7", 0, true},
		{"a:b.c", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranscriptString(t *testing.T) {
	tr := Transcript{Segments: []Segment{
		{Start: 0, End: 4.319, Text: "мужчина даже не мог их видеть"},
		{Start: 4.319, End: 9.8, Text: "сири что делать"},
	}}

	want := "[0:00.000 - 0:04.319] мужчина даже не мог их видеть\n[0:04.319 - 0:09.800] сири что делать"
	assert.Equal(t, want, tr.String())
	assert.Equal(t, "", Transcript{}.String())
}

func TestTranscriptRoundTrip(t *testing.T) {
	cases := [][]Segment{
		{{Start: 0, End: 5, Text: "x"}},
		{
			{Start: 0.001, End: 1.5, Text: "first"},
			{Start: 59.999, End: 61.25, Text: "second"},
			{Start: 3599.5, End: 3600.5, Text: "across the hour"},
			{Start: 7322.123, End: 7400, Text: "late"},
		},
		{{Start: 3, End: 3, Text: "zero length"}, {Start: 3, End: 4, Text: "same start"}},
	}

	for _, segments := range cases {
		tr := Transcript{Segments: segments}
		parsed := ParseTranscript(tr.String())
		assert.Equal(t, segments, parsed.Segments)
	}
}

func TestParseTranscriptSkipsNonSegmentLines(t *testing.T) {
	content := "Error: provider unavailable\n\n[0:01.000 - 0:02.000]   hello  \nnot a segment\n[x - y] broken"

	parsed := ParseTranscript(content)

	require.Len(t, parsed.Segments, 1)
	assert.Equal(t, Segment{Start: 1, End: 2, Text: "hello"}, parsed.Segments[0])
}

func TestParseTranscriptErrorMarker(t *testing.T) {
	assert.Empty(t, ParseTranscript("Error: context deadline exceeded").Segments)
	assert.Empty(t, ParseTranscript("").Segments)
}
