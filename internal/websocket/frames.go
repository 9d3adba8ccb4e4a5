package websocket

import (
	"time"
)

// Frame builds an outbound message of the given type. Every frame carries an
// RFC3339 timestamp alongside the caller's fields.
func Frame(frameType string, fields map[string]interface{}) map[string]interface{} {
	msg := map[string]interface{}{
		"type":      frameType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		msg[k] = v
	}
	return msg
}
