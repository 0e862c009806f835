package ai

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/zhouzirui/iris-chat/internal/model/chat"
	"github.com/zhouzirui/iris-chat/internal/service/transcript"
)

// EchoResponder is the offline fallback used when no model is configured.
// It understands "call <target>" and "meditate [minutes] [sound]" so the
// client's action path can be exercised without a model.
type EchoResponder struct{}

var _ Responder = EchoResponder{}

type actionFrame struct {
	Type     string `json:"type"`
	Action   string `json:"action"`
	Target   string `json:"target,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Sound    int    `json:"sound,omitempty"`
}

func (EchoResponder) Reply(_ context.Context, _ string, _ []transcript.Entry, userMessage string) (string, error) {
	fields := strings.Fields(userMessage)
	if len(fields) == 0 {
		return "", nil
	}

	switch strings.ToLower(fields[0]) {
	case "call":
		if len(fields) > 1 {
			return encodeAction(actionFrame{Type: "action", Action: "call", Target: strings.Join(fields[1:], " ")})
		}
	case "meditate":
		frame := actionFrame{
			Type:     "action",
			Action:   "meditate",
			Duration: chat.DefaultSessionMinutes,
			Sound:    chat.DefaultSoundIndex,
		}
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				frame.Duration = n
			}
		}
		if len(fields) > 2 {
			if n, err := strconv.Atoi(fields[2]); err == nil {
				frame.Sound = n
			}
		}
		return encodeAction(frame)
	}

	return "You said: " + userMessage, nil
}

func encodeAction(frame actionFrame) (string, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
