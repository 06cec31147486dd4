package saga

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

var messageNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("shareaware-saga/message"))

// MessageID returns a deterministic id for msg: the same type and payload
// always yield the same id. Sinks use it to suppress re-sent commands.
func MessageID(msg Message) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", msg.MessageType(), err)
	}
	data := append([]byte(msg.MessageType()+"\x00"), payload...)
	return uuid.NewSHA1(messageNamespace, data).String(), nil
}
