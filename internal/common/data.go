package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	log "github.com/tuannvm/workitem-qa/internal/logging"
)

// Payload is the content of an inbound message: either a structured object
// or a plain question.
type Payload struct {
	Data map[string]interface{}
	Text string
}

// ExtractPayload pulls the first usable part out of a message. Data parts
// win; a text part that holds a JSON object is treated as data, any other
// text is the question itself.
func ExtractPayload(message protocol.Message) (Payload, error) {
	if len(message.Parts) == 0 {
		return Payload{}, fmt.Errorf("message has no parts")
	}

	var text []string
	for _, part := range message.Parts {
		var dp *protocol.DataPart
		switch v := part.(type) {
		case protocol.DataPart:
			dp = &v
		case *protocol.DataPart:
			dp = v
		}
		if dp != nil && dp.Data != nil {
			m, err := toMap(dp.Data)
			if err != nil {
				log.Debugf("Skipping data part: %v", err)
				continue
			}
			return Payload{Data: m}, nil
		}

		if tp := asTextPart(part); tp != nil {
			t := strings.TrimSpace(tp.Text)
			if t == "" {
				continue
			}
			if strings.HasPrefix(t, "{") {
				var m map[string]interface{}
				if err := json.Unmarshal([]byte(t), &m); err == nil {
					return Payload{Data: m}, nil
				}
			}
			text = append(text, t)
		}
	}

	if len(text) == 0 {
		return Payload{}, fmt.Errorf("could not extract a question from message")
	}
	return Payload{Text: strings.Join(text, "\n")}, nil
}

// Decode re-marshals v into out. It is used to turn loosely typed payload
// fragments into model structs.
func Decode(v interface{}, out interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func toMap(v interface{}) (map[string]interface{}, error) {
	if m, ok := v.(map[string]interface{}); ok {
		return m, nil
	}
	var m map[string]interface{}
	if err := Decode(v, &m); err != nil {
		return nil, fmt.Errorf("data part is not an object: %w", err)
	}
	return m, nil
}

// TextOf concatenates the text parts of a message.
func TextOf(message *protocol.Message) string {
	if message == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range message.Parts {
		if tp := asTextPart(part); tp != nil {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// asTextPart accepts text parts by value or pointer; decoded messages and
// locally built ones differ.
func asTextPart(part protocol.Part) *protocol.TextPart {
	switch v := part.(type) {
	case protocol.TextPart:
		return &v
	case *protocol.TextPart:
		return v
	}
	return nil
}
