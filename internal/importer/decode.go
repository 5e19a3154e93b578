package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	appErrors "github.com/noah-isme/supercurriculum-admin/pkg/errors"
)

// DecodeStructured parses pasted structured text into records. Both a bare
// list and an object with a "topics" list are accepted and yield the same
// records. Any failure is reported as a single decode error.
func DecodeStructured(text string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, decodeError("input is empty", nil)
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, decodeError(syntaxMessage([]byte(trimmed), err), err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, decodeError("unexpected data after the document", err)
	}

	var list []interface{}
	switch v := doc.(type) {
	case []interface{}:
		list = v
	case map[string]interface{}:
		topics, ok := v["topics"]
		if !ok {
			return nil, decodeError(`expected a list or an object with a "topics" list`, nil)
		}
		list, ok = topics.([]interface{})
		if !ok {
			return nil, decodeError(`"topics" must be a list`, nil)
		}
	default:
		return nil, decodeError(`expected a list or an object with a "topics" list`, nil)
	}

	if len(list) == 0 {
		return nil, decodeError("no records found", nil)
	}
	records := make([]map[string]interface{}, 0, len(list))
	for i, item := range list {
		record, ok := item.(map[string]interface{})
		if !ok {
			return nil, decodeError(fmt.Sprintf("record %d is not an object", i+1), nil)
		}
		records = append(records, record)
	}
	return records, nil
}

func decodeError(message string, err error) error {
	if err == nil {
		return appErrors.Clone(appErrors.ErrDecode, message)
	}
	return appErrors.Wrap(err, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, message)
}

// syntaxMessage points at the line and column of a JSON syntax error.
func syntaxMessage(input []byte, err error) string {
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return "unexpected end of input"
		}
		return "invalid structured text"
	}
	offset := int(syntaxErr.Offset)
	if offset > len(input) {
		offset = len(input)
	}
	line := bytes.Count(input[:offset], []byte("\n")) + 1
	col := offset - bytes.LastIndexByte(input[:offset], '\n')
	return fmt.Sprintf("invalid structured text at line %d, column %d", line, col)
}
