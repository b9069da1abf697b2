package vector

// Match is an exact-match condition on one payload field.
// Value is a string, a bool, or any integer or float kind.
type Match struct {
	Key   string
	Value any
}

// Filter holds conditions that must all match.
type Filter struct {
	Must []Match
}

// MatchKeyword matches a string payload field.
func MatchKeyword(key, value string) Match {
	return Match{Key: key, Value: value}
}

// MatchInteger matches an integer payload field.
func MatchInteger(key string, value int64) Match {
	return Match{Key: key, Value: value}
}

// MeetingFilter restricts an operation to a single meeting's points.
func MeetingFilter(meetingID string) Filter {
	return Filter{Must: []Match{MatchKeyword(FieldMeetingID, meetingID)}}
}

// Matches reports whether a payload satisfies every condition in the filter.
// An empty filter matches everything.
func (f Filter) Matches(payload map[string]any) bool {
	for _, m := range f.Must {
		v, ok := payload[m.Key]
		if !ok || !equalValue(v, m.Value) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return a == b
}

// toFloat collapses numeric kinds so payloads decoded from JSON compare
// equal to the integers they were written as.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// PayloadString reads a string payload field, returning "" when absent.
func PayloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// PayloadInt reads a numeric payload field as int64, returning 0 when absent.
func PayloadInt(payload map[string]any, key string) int64 {
	f, ok := toFloat(payload[key])
	if !ok {
		return 0
	}
	return int64(f)
}
