package model

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "utc", in: "2026-10-19T08:00:00Z", want: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)},
		{name: "lowercase separators", in: "2026-10-19t08:00:00z", want: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)},
		{name: "fraction and offset", in: "2026-10-19T10:00:00.25+02:00", want: time.Date(2026, 10, 19, 8, 0, 0, 250_000_000, time.UTC)},
		{name: "leap second", in: "2016-12-31T23:59:60Z", want: time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "leap second with fraction", in: "2016-12-31T23:59:60.5Z", want: time.Date(2017, 1, 1, 0, 0, 0, 500_000_000, time.UTC)},
		{name: "not a date", in: "yesterday", wantErr: true},
		{name: "second out of range", in: "2026-10-19T08:00:61Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTimestamp(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}

			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTimestamp_JSON(t *testing.T) {
	t.Parallel()

	var v struct {
		TS Timestamp `json:"ts"`
	}

	if err := json.Unmarshal([]byte(`{"ts":"2026-10-19t08:00:00.5z"}`), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	if string(out) != `{"ts":"2026-10-19T08:00:00.5Z"}` {
		t.Errorf("Marshal() = %s, want {\"ts\":\"2026-10-19T08:00:00.5Z\"}", out)
	}
}
