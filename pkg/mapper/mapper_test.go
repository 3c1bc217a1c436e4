package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/ecorecycle/pkg/types"
)

func TestMapExactKeys(t *testing.T) {
	m := New()
	for _, e := range DefaultTable {
		for _, k := range e.Keys {
			got := m.Map(k)
			assert.Equal(t, e.Mapping, got, "key %q", k)
			assert.Equal(t, got.PointValue > 0, got.Recyclable(), "key %q", k)
		}
	}
}

func TestMapMetalScenario(t *testing.T) {
	got := New().Map("metal")

	assert.Equal(t, "Metal", got.DisplayName)
	assert.Equal(t, "Azul (Aprovechables)", got.BinLabel)
	assert.Equal(t, 4, got.PointValue)
	assert.True(t, got.Recyclable())
}

func TestMapUnknownLabel(t *testing.T) {
	m := New()
	for _, label := range []string{"unknown_blob", "zzz", "", "   "} {
		got := m.Map(label)
		assert.Equal(t, Unidentified, got, "label %q", label)
		assert.Zero(t, got.PointValue)
		assert.False(t, got.Recyclable())
	}
}

func TestMapNormalizesCase(t *testing.T) {
	m := New()
	assert.Equal(t, "Vidrio", m.Map("  GLASS ").DisplayName)
	assert.Equal(t, "Plástico", m.Map("Plastic_Bottle").DisplayName)
}

func TestMapSubstringBothDirections(t *testing.T) {
	m := New()

	// label contains key
	assert.Equal(t, "Cartón", m.Map("wet cardboard box").DisplayName)
	// key contains label
	assert.Equal(t, "Orgánico", m.Map("orgán").DisplayName)
}

func TestMapSubstringDeclarationOrder(t *testing.T) {
	// both entries match by substring; the first declared wins
	m := NewWithTable([]Entry{
		{Keys: []string{"bottle"}, Mapping: types.RecyclingMapping{DisplayName: "first", PointValue: 1}},
		{Keys: []string{"glass"}, Mapping: types.RecyclingMapping{DisplayName: "second", PointValue: 2}},
	})
	assert.Equal(t, "first", m.Map("glass bottle").DisplayName)

	m = NewWithTable([]Entry{
		{Keys: []string{"glass"}, Mapping: types.RecyclingMapping{DisplayName: "second", PointValue: 2}},
		{Keys: []string{"bottle"}, Mapping: types.RecyclingMapping{DisplayName: "first", PointValue: 1}},
	})
	assert.Equal(t, "second", m.Map("glass bottle").DisplayName)
}

func TestNewWithTableClampsNegativePoints(t *testing.T) {
	m := NewWithTable([]Entry{
		{Keys: []string{"odd"}, Mapping: types.RecyclingMapping{DisplayName: "Odd", PointValue: -3}},
	})
	got, ok := m.Lookup("ODD")
	require.True(t, ok)
	assert.Zero(t, got.PointValue)
	assert.False(t, got.Recyclable())
}

func TestDefaultTableInvariants(t *testing.T) {
	for _, e := range New().Entries() {
		assert.GreaterOrEqual(t, e.Mapping.PointValue, 0, e.Mapping.DisplayName)
		assert.NotEmpty(t, e.Keys, e.Mapping.DisplayName)
		assert.NotEmpty(t, e.Mapping.BinLabel, e.Mapping.DisplayName)
	}
}

func BenchmarkMapSubstring(b *testing.B) {
	m := New()
	for i := 0; i < b.N; i++ {
		m.Map("crushed aluminum soda can")
	}
}
