package keba

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var ackLineRegexp = regexp.MustCompile(`^([A-Za-z0-9_-]+) :(.*)$`)

// ParseResponse decodes a reply datagram. Three wire formats are tried in
// order: "KEY :value" acknowledgement lines, JSON object bodies, and
// newline-delimited key=value pairs with numeric coercion. Empty or
// whitespace-only input decodes to an empty report, never an error.
func ParseResponse(data string) Response {
	text := strings.TrimSpace(data)
	if text == "" {
		return Report{fields: map[string]any{}}
	}

	if m := ackLineRegexp.FindStringSubmatch(firstLine(text)); m != nil {
		return Ack{Key: m[1], Value: strings.TrimSpace(m[2])}
	}

	if strings.HasPrefix(text, "{") {
		var fields map[string]any
		if err := json.Unmarshal([]byte(text), &fields); err == nil {
			return Report{fields: fields}
		}
		return Unknown{Raw: data}
	}

	if fields, ok := parseKeyValueLines(text); ok {
		return Report{fields: fields}
	}

	return Unknown{Raw: data}
}

// ParseBroadcast decodes an unsolicited JSON datagram. Unknown fields are
// ignored; a body without any known field yields an empty Broadcast.
func ParseBroadcast(data string) (Broadcast, error) {
	var raw struct {
		State         *int     `json:"State"`
		Plug          *int     `json:"Plug"`
		Input         *int     `json:"Input"`
		SessionEnergy *float64 `json:"E pres"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &raw); err != nil {
		return Broadcast{}, err
	}
	return Broadcast{
		State:         raw.State,
		Plug:          raw.Plug,
		Input:         raw.Input,
		SessionEnergy: raw.SessionEnergy,
	}, nil
}

func parseKeyValueLines(text string) (map[string]any, bool) {
	fields := map[string]any{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, false
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if f, err := parseNumber(value); err == nil {
			fields[key] = f
		} else {
			fields[key] = value
		}
	}
	return fields, true
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return line
}
