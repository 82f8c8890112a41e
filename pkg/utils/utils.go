// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package utils provides common helper functionality shared across GeneTrial packages.
package utils

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/exp/constraints"
)

var (
	// ErrRepairJSON indicates that malformed JSON text could not be repaired.
	ErrRepairJSON = errors.New("failed to repair malformed JSON text")
	// ErrInvalidJSONSchema indicates that a JSON schema definition is not valid.
	ErrInvalidJSONSchema = errors.New("invalid JSON schema")
	// ErrJSONSchemaValidation indicates that a value does not conform to a JSON schema.
	ErrJSONSchemaValidation = errors.New("value does not conform to JSON schema")
)

var (
	markdownJSONMatcher = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	lineBreakMatcher    = regexp.MustCompile("\r\n|\r|\n")
)

// NoPanic calls fn and converts a panic into an error.
func NoPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected panic: %v", r)
		}
	}()
	return fn()
}

// Ptr returns a pointer to the given value.
func Ptr[T any](value T) *T {
	return &value
}

// JSONFromMarkdown extracts the first JSON code block from the given markdown content.
// If no JSON code block is found, it returns the content unchanged.
func JSONFromMarkdown(content string) string {
	if match := markdownJSONMatcher.FindStringSubmatch(content); match != nil {
		return match[1]
	}
	return content
}

// RepairTextJSON attempts to turn free-form text containing JSON into valid JSON.
// It strips markdown code fences and repairs common syntax defects
// such as unescaped line breaks or missing closing brackets.
// Content that already is valid JSON is returned unchanged.
func RepairTextJSON(content string) (string, error) {
	content = strings.TrimSpace(JSONFromMarkdown(content))
	if json.Valid([]byte(content)) {
		return content, nil
	}
	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRepairJSON, err)
	}
	return repaired, nil
}

// SplitLines splits text into individual lines on any common line-break sequence.
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	return lineBreakMatcher.Split(text, -1)
}

// FormatValue renders a value as display text.
// Strings are used as-is while other values are rendered as compact JSON.
func FormatValue(value interface{}) string {
	if text, ok := value.(string); ok {
		return text
	}
	if data, err := json.Marshal(value); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", value)
}

// ValidateAgainstSchema validates the given values against the JSON schema definition.
// It returns ErrInvalidJSONSchema if the schema itself does not compile
// and ErrJSONSchemaValidation if any value does not conform to it.
func ValidateAgainstSchema(schema map[string]interface{}, values ...interface{}) error {
	compiled, err := compileSchema(schema)
	if err != nil {
		return err
	}
	for _, value := range values {
		decoded, err := roundTripJSON(value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrJSONSchemaValidation, err)
		}
		if err := compiled.Validate(decoded); err != nil {
			return fmt.Errorf("%w: %v", ErrJSONSchemaValidation, err)
		}
	}
	return nil
}

func compileSchema(schema map[string]interface{}) (*jsonschema.Schema, error) {
	doc, err := roundTripJSON(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSONSchema, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSONSchema, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSONSchema, err)
	}
	return compiled, nil
}

// roundTripJSON converts an arbitrary Go value into the generic representation
// expected by the schema validator.
func roundTripJSON(value interface{}) (interface{}, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

// SortedKeys returns the unique keys of all given maps in ascending order.
func SortedKeys[K cmp.Ordered, V any](maps ...map[K]V) []K {
	seen := make(map[K]struct{})
	keys := make([]K, 0)
	for _, m := range maps {
		for key := range m {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}
	}
	slices.Sort(keys)
	return keys
}

// ConvertIntPtr converts an integer pointer value to another integer type.
// Values outside the target range wrap around. A nil pointer converts to nil.
func ConvertIntPtr[S constraints.Integer, T constraints.Integer](value *S) *T {
	if value == nil {
		return nil
	}
	converted := T(*value)
	return &converted
}
