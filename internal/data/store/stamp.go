package store

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	perr "github.com/noni/smptweaks/internal/pkg/errors"
)

// StampLayout is the textual timestamp encoding shared with the embedded file.
const StampLayout = "2006-01-02 15:04:05"

// zeroDate is what MySQL hands back for a zeroed DATETIME.
const zeroDate = "0000-00-00 00:00:00"

var stampLayouts = []string{
	StampLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02",
}

func FormatStamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(StampLayout)
}

// rawStamp scans a nullable timestamp column without letting the driver
// decide how to decode it.
type rawStamp struct {
	value any
}

func (s *rawStamp) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		s.value = string(v)
	default:
		s.value = v
	}
	return nil
}

// decode reports (t, true, nil) for a usable value, (Never, false, nil) for
// null, and (Never, false, err) when the stored value is malformed.
func (s rawStamp) decode(loc *time.Location) (time.Time, bool, error) {
	return DecodeStamp(s.value, loc)
}

func DecodeStamp(value any, loc *time.Location) (time.Time, bool, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch v := value.(type) {
	case nil:
		return domain.Never, false, nil
	case time.Time:
		if v.IsZero() {
			return domain.Never, false, nil
		}
		return v, true, nil
	case []byte:
		return parseStampText(string(v), loc)
	case string:
		return parseStampText(v, loc)
	default:
		return domain.Never, false, fmt.Errorf("%w: unsupported timestamp type %T", perr.ErrParse, value)
	}
}

func parseStampText(raw string, loc *time.Location) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == zeroDate {
		return domain.Never, false, nil
	}
	for _, layout := range stampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true, nil
		}
	}
	return domain.Never, false, fmt.Errorf("%w: timestamp %q", perr.ErrParse, raw)
}
