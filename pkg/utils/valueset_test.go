// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValueSet_NewValueSet(t *testing.T) {
	v := NewValueSet("BRCA2", "CFTR", 13, "HBB")
	assert.ElementsMatch(t, []interface{}{"BRCA2", "CFTR", 13, "HBB"}, v.Values())

	// Duplicates collapse.
	vWithDuplicates := NewValueSet("BRCA2", "CFTR", "BRCA2", 13, "CFTR", "HBB")
	assert.ElementsMatch(t, []interface{}{"BRCA2", "CFTR", 13, "HBB"}, vWithDuplicates.Values())
}

func TestValueSet_Any(t *testing.T) {
	v := NewValueSet("BRCA2", "CFTR", 13, "HBB")
	assert.True(t, v.Any(func(val interface{}) bool { return val == "CFTR" }))
	assert.True(t, v.Any(func(val interface{}) bool { return val == 13 }))
	assert.False(t, v.Any(func(val interface{}) bool { return val == "TP53" }))
	assert.False(t, v.Any(func(val interface{}) bool { return val == 21 }))
}

func TestValueSet_Map(t *testing.T) {
	v := NewValueSet("cftr", "CFTR", "hbb", "tp53")
	require.ElementsMatch(t, []interface{}{"cftr", "CFTR", "hbb", "tp53"}, v.Values())

	// Mapping to uppercase collapses the colliding variants.
	mapped := v.Map(func(val interface{}) interface{} {
		if str, ok := val.(string); ok {
			return strings.ToUpper(str)
		}
		return val
	})
	assert.ElementsMatch(t, []interface{}{"CFTR", "HBB", "TP53"}, mapped.Values())
}

func TestValueSet_AsStringSet(t *testing.T) {
	// All strings convert.
	v1 := NewValueSet("BRCA2", "CFTR", "HBB")
	stringSet, ok := v1.AsStringSet()
	assert.True(t, ok)
	assert.ElementsMatch(t, []string{"BRCA2", "CFTR", "HBB"}, stringSet.Values())

	// Mixed types do not.
	v2 := NewValueSet("BRCA2", 13, "HBB")
	_, ok = v2.AsStringSet()
	assert.False(t, ok)

	// An empty set converts trivially.
	v3 := NewValueSet()
	stringSet, ok = v3.AsStringSet()
	assert.True(t, ok)
	assert.Empty(t, stringSet.Values())
}

func TestValueSet_YAMLUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		expected []interface{}
	}{
		{
			name:     "single string value",
			yaml:     "chromosome 13",
			expected: []interface{}{"chromosome 13"},
		},
		{
			name:     "list of strings",
			yaml:     "- BRCA2\n- CFTR\n- HBB",
			expected: []interface{}{"BRCA2", "CFTR", "HBB"},
		},
		{
			name:     "mixed types",
			yaml:     "- missense\n- 13\n- true",
			expected: []interface{}{"missense", 13, true},
		},
		{
			name:     "single number",
			yaml:     "46",
			expected: []interface{}{46},
		},
		{
			name: "list with map objects",
			yaml: `- gene: "BRCA2"
  chromosome: 13
- gene: "CFTR"
  chromosome: 7`,
			expected: []interface{}{
				map[string]interface{}{"gene": "BRCA2", "chromosome": 13},
				map[string]interface{}{"gene": "CFTR", "chromosome": 7},
			},
		},
		{
			name: "list with nested objects",
			yaml: `- gene: "BRCA2"
  exons: [10, 11, 12]
- gene: "CFTR"
  exons: [26, 27]`,
			expected: []interface{}{
				map[string]interface{}{"gene": "BRCA2", "exons": []interface{}{10, 11, 12}},
				map[string]interface{}{"gene": "CFTR", "exons": []interface{}{26, 27}},
			},
		},
		{
			name: "single map object",
			yaml: `gene: "BRCA2"
chromosome: 13`,
			expected: []interface{}{
				map[string]interface{}{"gene": "BRCA2", "chromosome": 13},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var unmarshaled ValueSet
			err := yaml.Unmarshal([]byte(tt.yaml), &unmarshaled)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.expected, unmarshaled.Values())
		})
	}
}

func TestValueSet_YAMLUnmarshal_Error(t *testing.T) {
	var unmarshaled ValueSet
	err := yaml.Unmarshal([]byte("invalid: - :"), &unmarshaled)
	require.Error(t, err)
}

func TestValueSet_YAMLMarshal(t *testing.T) {
	tests := []struct {
		name     string
		values   []interface{}
		contains []string // fragments that must appear in the marshaled YAML.
	}{
		{
			name:     "single value",
			values:   []interface{}{"autosomal dominant"},
			contains: []string{"autosomal dominant"},
		},
		{
			name:     "multiple strings",
			values:   []interface{}{"BRCA2", "CFTR", "HBB"},
			contains: []string{"BRCA2", "CFTR", "HBB"},
		},
		{
			name:     "mixed types",
			values:   []interface{}{"missense", 13, true},
			contains: []string{"missense", "13", "true"},
		},
		{
			name: "map objects",
			values: []interface{}{
				map[string]interface{}{"gene": "BRCA2", "penetrance": 0.95},
				map[string]interface{}{"gene": "CFTR", "penetrance": 0.90},
			},
			contains: []string{"gene", "BRCA2", "CFTR", "penetrance", "0.95", "0.9"},
		},
		{
			name: "nested objects",
			values: []interface{}{
				map[string]interface{}{"gene": "HBB", "exons": []interface{}{1, 2, 3}},
			},
			contains: []string{"gene", "HBB", "exons", "1", "2", "3"},
		},
		{
			name: "single map",
			values: []interface{}{
				map[string]interface{}{"band": "13q13.1"},
			},
			contains: []string{"band", "13q13.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValueSet(tt.values...)
			marshaled, err := yaml.Marshal(v)
			require.NoError(t, err)

			marshaledStr := string(marshaled)
			for _, expected := range tt.contains {
				assert.Contains(t, marshaledStr, expected)
			}
		})
	}
}

func TestValueSet_Values(t *testing.T) {
	// Values must return a copy, not the backing slice.
	v := NewValueSet("BRCA2", "CFTR", "HBB")
	values1 := v.Values()
	values2 := v.Values()

	assert.NotSame(t, &values1[0], &values2[0], "Each call to Values() should return a different slice reference")
	assert.ElementsMatch(t, []interface{}{"BRCA2", "CFTR", "HBB"}, v.Values())
}

func TestValueSet_EmptySet(t *testing.T) {
	v := NewValueSet()
	assert.Empty(t, v.Values())
	assert.False(t, v.Any(func(interface{}) bool { return true }))

	mapped := v.Map(func(val interface{}) interface{} { return val })
	assert.Empty(t, mapped.Values())

	stringSet, ok := v.AsStringSet()
	assert.True(t, ok)
	assert.Empty(t, stringSet.Values())
}
