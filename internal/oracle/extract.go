package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkddi-mcp-server/internal/domain"
)

// ExtractObject returns the substring from the first '{' to the last '}'
func ExtractObject(text string) (string, error) {
	return extractBetween(text, '{', '}')
}

// ExtractArray returns the substring from the first '[' to the last ']'
func ExtractArray(text string) (string, error) {
	return extractBetween(text, '[', ']')
}

func extractBetween(text string, open, close byte) (string, error) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end < start {
		return "", domain.NewSchemaError("response", fmt.Sprintf("no JSON value delimited by %c%c", open, close))
	}
	return text[start : end+1], nil
}

// DecodeObject extracts and decodes the JSON object embedded in an oracle response
func DecodeObject[T any](text string) (T, error) {
	var out T
	raw, err := ExtractObject(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, domain.NewSchemaError("response", fmt.Sprintf("malformed JSON object: %v", err))
	}
	return out, nil
}

// DecodeArray extracts and decodes the JSON array embedded in an oracle response
func DecodeArray[T any](text string) ([]T, error) {
	raw, err := ExtractArray(text)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, domain.NewSchemaError("response", fmt.Sprintf("malformed JSON array: %v", err))
	}
	return out, nil
}
