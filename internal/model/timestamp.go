package model

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Timestamp is a date-time carried in an envelope. It decodes every RFC 3339 form the schemas
// accept, including lowercase "t"/"z" separators and a leap second, which time.Time rejects.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}

	t.Time = parsed

	return nil
}

// ParseTimestamp parses an RFC 3339 date-time. A leap second (":60") rolls over into the next
// minute, the same way Postgres reads it into timestamptz.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.ToUpper(s)

	leap := len(s) >= 19 && s[16] == ':' && s[17:19] == "60"
	if leap {
		s = s[:17] + "59" + s[19:]
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}

	if leap {
		t = t.Add(time.Second)
	}

	return t, nil
}
