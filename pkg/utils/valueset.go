// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package utils

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"gopkg.in/yaml.v3"
)

// ErrInvalidValueSetValue indicates invalid ValueSet definition.
var ErrInvalidValueSetValue = errors.New("invalid set value")

// ValueSet holds unique values of any type in their original order.
// Task expectations use it so that an expected result can be a plain string,
// a structured object, or a list of acceptable alternatives.
type ValueSet struct {
	values []interface{}
}

// NewValueSet creates a new ValueSet from the given items.
// Duplicates are detected by deep equality and discarded.
func NewValueSet(items ...interface{}) ValueSet {
	unique := make([]interface{}, 0, len(items))
	for _, item := range items {
		exists := slices.ContainsFunc(unique, func(existing interface{}) bool {
			return reflect.DeepEqual(existing, item)
		})
		if !exists {
			unique = append(unique, item)
		}
	}
	return ValueSet{values: unique}
}

// Values returns a copy of the set's values.
func (v ValueSet) Values() []interface{} {
	return slices.Clone(v.values)
}

// Any returns true if any value in the set satisfies the given condition.
func (v ValueSet) Any(condition func(interface{}) bool) bool {
	return slices.ContainsFunc(v.values, condition)
}

// Map returns a new ValueSet with transform applied to each value.
// Values that collide after transformation are collapsed.
func (v ValueSet) Map(transform func(interface{}) interface{}) ValueSet {
	transformed := make([]interface{}, len(v.values))
	for i, val := range v.values {
		transformed[i] = transform(val)
	}
	return NewValueSet(transformed...)
}

// AsStringSet converts the set to a StringSet when every value is a string.
// It returns (values, true) on success and (empty StringSet, false) when any
// value has a different type.
func (v ValueSet) AsStringSet() (StringSet, bool) {
	strings := make([]string, 0, len(v.values))
	for _, val := range v.values {
		str, ok := val.(string)
		if !ok {
			return StringSet{}, false
		}
		strings = append(strings, str)
	}
	return NewStringSet(strings...), true
}

// UnmarshalYAML accepts a scalar, a mapping, or a sequence of values.
func (v *ValueSet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single interface{}
		if err := value.Decode(&single); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValueSetValue, err)
		}
		v.values = []interface{}{single}
	case yaml.MappingNode:
		var m map[string]interface{}
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValueSetValue, err)
		}
		v.values = []interface{}{m}
	case yaml.SequenceNode:
		var list []interface{}
		if err := value.Decode(&list); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValueSetValue, err)
		}
		v.values = list
	default:
		return fmt.Errorf("%w: must be a value or list of values", ErrInvalidValueSetValue)
	}
	return nil
}

// MarshalYAML renders a single-element set as the bare value and larger
// sets as a list, mirroring the accepted input forms.
func (v ValueSet) MarshalYAML() (interface{}, error) {
	if len(v.values) == 1 {
		return v.values[0], nil
	}
	return v.values, nil
}
