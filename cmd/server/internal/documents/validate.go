package documents

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyContent   = errors.New("empty content payload")
	ErrInvalidContent = errors.New("invalid content payload")
	ErrUnknownKind    = errors.New("unknown document kind")
)

// ValidateContent checks an incoming whole-document replacement payload at
// the handler boundary, before it can reach the state cache. Canvas and
// board payloads must decode into their full shape; note payloads are opaque
// but must be a JSON object.
func ValidateContent(kind Kind, content json.RawMessage) error {
	if len(content) == 0 {
		return ErrEmptyContent
	}

	switch kind {
	case KindCanvas:
		var c CanvasContent
		if err := strictUnmarshal(content, &c); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
		if c.Nodes == nil {
			return fmt.Errorf("%w: missing nodes list", ErrInvalidContent)
		}
	case KindBoard:
		var b BoardContent
		if err := strictUnmarshal(content, &b); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
		if b.Items == nil {
			return fmt.Errorf("%w: missing items list", ErrInvalidContent)
		}
	case KindNote:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(content, &obj); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
	default:
		return ErrUnknownKind
	}
	return nil
}

// strictUnmarshal rejects unknown top-level fields so a payload for the
// wrong kind does not silently decode into an empty struct.
func strictUnmarshal(data json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
