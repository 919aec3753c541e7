package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPositiveResult_RoundTrip(t *testing.T) {
	r := NewPositiveResult("ip-match", "1.2.3.0/24", true,
		WithTrigger(42, "revision"),
		WithEquivalentNames("ip-match-legacy"))

	assert.True(t, r.IsMatch())
	assert.Equal(t, "ip-match", r.Name())
	assert.Equal(t, "1.2.3.0/24", r.Value())
	assert.True(t, r.AllowsMerging())
	assert.Equal(t, int64(42), r.TriggerID())
	assert.Equal(t, "revision", r.TriggerTable())
	assert.Equal(t, []string{"ip-match-legacy"}, r.EquivalentNames())
}

func TestNewPositiveResult_DefaultsToNoTrigger(t *testing.T) {
	r := NewPositiveResult("ua-match", "Mozilla/5.0", false)

	assert.Equal(t, int64(0), r.TriggerID())
	assert.Equal(t, "", r.TriggerTable())
	assert.Empty(t, r.EquivalentNames())
	assert.False(t, r.AllowsMerging())
}

func TestNewNegativeResult_NameOnly(t *testing.T) {
	r := NewNegativeResult("ip-match")

	assert.False(t, r.IsMatch())
	assert.Equal(t, "ip-match", r.Name())
}

func TestNegativeResult_MatchOnlyAccessorsPanic(t *testing.T) {
	r := NewNegativeResult("ip-match")

	require.Panics(t, func() { r.Value() })
	require.Panics(t, func() { r.AllowsMerging() })
	require.Panics(t, func() { r.TriggerID() })
	require.Panics(t, func() { r.TriggerTable() })
	require.Panics(t, func() { r.EquivalentNames() })
	require.Panics(t, func() { r.MergeNames() })
}

func TestMergeNames_IncludesOwnAndEquivalentNames(t *testing.T) {
	r := NewPositiveResult("ip-match", "10.0.0.1", true,
		WithEquivalentNames("ip-match-v2", "ip-match-legacy"))

	assert.Equal(t, []string{"ip-match", "ip-match-v2", "ip-match-legacy"}, r.MergeNames())
}

func TestEquivalentNames_ReturnsCopy(t *testing.T) {
	r := NewPositiveResult("ip-match", "10.0.0.1", true,
		WithEquivalentNames("ip-match-v2"))

	names := r.EquivalentNames()
	names[0] = "mutated"

	assert.Equal(t, []string{"ip-match-v2"}, r.EquivalentNames())
}
