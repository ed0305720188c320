package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{"b": 1, "a": "x", "c": true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":true}`, string(data))
}

func TestMarshalCanonical_NestedObjects(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{
		"outer": map[string]any{"z": 1, "y": []any{"b", "a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"outer":{"y":["b","a"],"z":1}}`, string(data))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{"s": "<a & b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"<a & b>"}`, string(data))
}

func TestMarshalCanonical_Floats(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{"half": 0.5, "whole": 100.0, "neg": -0.25})
	require.NoError(t, err)
	assert.Equal(t, `{"half":0.5,"neg":-0.25,"whole":100}`, string(data))
}

func TestMarshalCanonical_RejectsNaN(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": math.NaN()})
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": math.Inf(1)})
	assert.Error(t, err)
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"

	a, err := MarshalCanonical(map[string]any{decomposed: decomposed})
	require.NoError(t, err)
	b, err := MarshalCanonical(map[string]any{composed: composed})
	require.NoError(t, err)

	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonical_StructTags(t *testing.T) {
	type sample struct {
		Beta  int    `json:"beta"`
		Alpha string `json:"alpha"`
	}
	data, err := MarshalCanonical(sample{Beta: 2, Alpha: "one"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"one","beta":2}`, string(data))
}

func TestMarshalCanonical_IdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalizing canonical output is a no-op", prop.ForAll(
		func(keys []string, value float64) bool {
			obj := map[string]any{}
			for i, k := range keys {
				obj[k] = value * float64(i+1)
			}

			first, err := MarshalCanonical(obj)
			if err != nil {
				return false
			}
			var decoded any
			if err := json.Unmarshal(first, &decoded); err != nil {
				return false
			}
			second, err := MarshalCanonical(decoded)
			if err != nil {
				return false
			}
			return string(first) == string(second)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}
