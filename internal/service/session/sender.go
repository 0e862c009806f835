package session

import (
	"encoding/json"
	"fmt"
)

type outboundFrame struct {
	Message string `json:"message"`
}

// EncodeOutbound builds the wire frame carrying one user message.
func EncodeOutbound(text string) ([]byte, error) {
	frame, err := json.Marshal(outboundFrame{Message: text})
	if err != nil {
		return nil, fmt.Errorf("encoding outbound frame: %w", err)
	}
	return frame, nil
}
