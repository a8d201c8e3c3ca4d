package peer

import (
	"encoding/json"
	"fmt"
)

// DecodeError reports a frame that could not be turned into a Message. It is
// never fatal to the channel.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding sync message: %s: %v", e.Reason, e.Err)
	}
	return "decoding sync message: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(reason string, err error) error {
	return &DecodeError{Reason: reason, Err: err}
}

// Encode serializes msg as one JSON document.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses and validates a frame.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, decodeErr("malformed json", err)
	}

	if msg.SchemaVersion != SchemaVersionV1 {
		return Message{}, decodeErr(fmt.Sprintf("unsupported schema version %d", msg.SchemaVersion), nil)
	}

	switch msg.Kind {
	case KindHello, KindCatalogRequest:
	case KindMemoUpdate:
		if msg.Memo == nil {
			return Message{}, decodeErr("memo_update without memo", nil)
		}
		if err := msg.Memo.Memo.Validate(); err != nil {
			return Message{}, decodeErr("memo_update carries invalid memo", err)
		}
	case KindCatalogResponse:
		if msg.Catalog == nil {
			return Message{}, decodeErr("catalog_response without catalog", nil)
		}
		for i := range msg.Catalog {
			if err := msg.Catalog[i].Memo.Validate(); err != nil {
				return Message{}, decodeErr(fmt.Sprintf("catalog entry %d is invalid", i), err)
			}
		}
	default:
		return Message{}, decodeErr(fmt.Sprintf("unknown kind %q", msg.Kind), nil)
	}

	if msg.Role != "" && !msg.Role.Valid() {
		return Message{}, decodeErr(fmt.Sprintf("unknown role %q", msg.Role), nil)
	}

	return msg, nil
}
