package router

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
)

// DecodeKind classifies an inbound frame.
type DecodeKind int

const (
	// KindText is conversational text; the whole raw frame is the reply.
	KindText DecodeKind = iota
	// KindAction is a recognized action command.
	KindAction
	// KindUnsupported is structured data this client does not understand.
	KindUnsupported
)

// Decoded is the explicit result of classifying one frame.
type Decoded struct {
	Kind    DecodeKind
	Text    string
	Command chat.ActionCommand
	// Type and Action echo the envelope fields of unsupported frames.
	Type   string
	Action string
}

// Decode classifies raw. Anything that is not an object with a string "type"
// field decodes as text.
func Decode(raw string) Decoded {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return Decoded{Kind: KindText, Text: raw}
	}

	typ, ok := stringField(fields, "type")
	if !ok {
		return Decoded{Kind: KindText, Text: raw}
	}
	if typ != "action" {
		return Decoded{Kind: KindUnsupported, Type: typ}
	}

	action, _ := stringField(fields, "action")
	switch action {
	case "call":
		target, _ := looseStringField(fields, "target")
		return Decoded{Kind: KindAction, Command: chat.CallAction{Target: target}}
	case "meditate":
		return Decoded{Kind: KindAction, Command: chat.MeditateAction{
			DurationMinutes: intField(fields, "duration", chat.DefaultSessionMinutes),
			SoundIndex:      intField(fields, "sound", chat.DefaultSoundIndex),
		}}
	default:
		return Decoded{Kind: KindUnsupported, Type: typ, Action: action}
	}
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// looseStringField accepts strings and renders numbers and booleans as text.
func looseStringField(fields map[string]json.RawMessage, key string) (string, bool) {
	if s, ok := stringField(fields, key); ok {
		return s, true
	}
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch v.(type) {
	case float64, bool:
		return strings.TrimSpace(string(raw)), true
	default:
		return "", false
	}
}

// intField accepts JSON numbers (fractions truncated) and numeric strings;
// anything else yields def.
func intField(fields map[string]json.RawMessage, key string, def int) int {
	raw, ok := fields[key]
	if !ok || strings.TrimSpace(string(raw)) == "null" {
		return def
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return truncate(n, def)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return truncate(f, def)
		}
	}
	return def
}

func truncate(f float64, def int) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return def
	}
	return int(f)
}
