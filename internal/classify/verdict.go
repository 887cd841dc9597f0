package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse marks a reply that is not in the documented {"on","activity"} shape
var ErrParse = errors.New("could not parse classifier reply")

// Verdict is a normalized classifier judgment
type Verdict struct {
	OnTask   bool
	Activity string
}

// DefaultActivity fills in when the model omits a description
const DefaultActivity = "Unknown activity"

// ExtractObject returns the span from the first '{' to the last '}' in text.
// Models often wrap JSON in prose or code fences.
func ExtractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseVerdict extracts and normalizes a judgment from a raw model reply
func ParseVerdict(raw string) (Verdict, error) {
	obj, ok := ExtractObject(raw)
	if !ok {
		return Verdict{}, fmt.Errorf("%w: no JSON object in reply", ErrParse)
	}

	var parsed struct {
		On       json.RawMessage `json:"on"`
		Activity any             `json:"activity"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(parsed.On) == 0 {
		return Verdict{}, fmt.Errorf("%w: missing \"on\" field", ErrParse)
	}

	on, err := normalizeOn(parsed.On)
	if err != nil {
		return Verdict{}, err
	}

	activity := ""
	if s, ok := parsed.Activity.(string); ok {
		activity = strings.TrimSpace(s)
	}
	if activity == "" {
		activity = DefaultActivity
	}
	return Verdict{OnTask: on, Activity: activity}, nil
}

// normalizeOn accepts 1/0, true/false and their string forms. Any other number
// counts as off task, matching a strict "== 1" reading.
func normalizeOn(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return false, fmt.Errorf("%w: \"on\" is null", ErrParse)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes":
			return true, nil
		case "0", "false", "no":
			return false, nil
		}
		return false, fmt.Errorf("%w: unrecognized \"on\" value %q", ErrParse, s)
	}

	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return false, fmt.Errorf("%w: unrecognized \"on\" value %s", ErrParse, raw)
	}
	return n == 1, nil
}
