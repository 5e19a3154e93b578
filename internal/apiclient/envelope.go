package apiclient

import (
	"bytes"
	"encoding/json"
	"strings"
)

var envelopeKeys = map[string]struct{}{
	"data":       {},
	"error":      {},
	"message":    {},
	"meta":       {},
	"pagination": {},
	"status":     {},
	"success":    {},
}

// unwrapEnvelope returns the "data" member when body is a response envelope,
// otherwise body itself. An object is an envelope only when every key is an
// envelope key, so resources that happen to carry a "data" field survive.
func unwrapEnvelope(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return trimmed
	}
	data, ok := obj["data"]
	if !ok {
		return trimmed
	}
	for key := range obj {
		if _, known := envelopeKeys[key]; !known {
			return trimmed
		}
	}
	return data
}

func decodeBody(body []byte, dest interface{}) error {
	payload := unwrapEnvelope(body)
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	return json.Unmarshal(payload, dest)
}

// extractMessage pulls the backend-provided failure message out of an error body.
func extractMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] != '{' {
		text := string(trimmed)
		if len(text) > 300 || strings.HasPrefix(text, "<") {
			return ""
		}
		return text
	}
	var obj struct {
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return ""
	}
	if len(obj.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(obj.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if err := json.Unmarshal(obj.Error, &plain); err == nil && plain != "" {
			return plain
		}
	}
	if obj.Message != "" {
		return obj.Message
	}
	return obj.Detail
}
