// Package structured turns model output into fixed response schemas.
package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kira-labs/kira/internal/domain"
)

// Object is a parsed top-level JSON object with lazily decoded fields.
type Object map[string]json.RawMessage

// Get decodes the named field. Missing fields are null.
func (o Object) Get(key string) Value {
	raw, ok := o[key]
	if !ok {
		return Value{}
	}
	return Decode(raw)
}

// StripFences removes a surrounding Markdown code fence (```json or ```) and outer whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Parse strips fences and decodes a JSON object. Failures are KindInvalidJSON errors.
func Parse(text string) (Object, error) {
	cleaned := StripFences(text)

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	var obj Object
	if err := dec.Decode(&obj); err != nil {
		return nil, invalidJSON(err)
	}
	if dec.More() {
		return nil, invalidJSON(errors.New("trailing data after JSON object"))
	}
	if obj == nil {
		return nil, invalidJSON(errors.New("expected a JSON object, got null"))
	}
	return obj, nil
}

func invalidJSON(err error) error {
	return domain.NewLLMError(domain.KindInvalidJSON, "", domain.OperationGeneration, fmt.Errorf("parse: %w", err))
}
