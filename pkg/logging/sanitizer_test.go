package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalValueDigest_StableAndOpaque(t *testing.T) {
	a := SignalValueDigest("1.2.3.0/24")
	b := SignalValueDigest("1.2.3.0/24")
	c := SignalValueDigest("1.2.4.0/24")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 12)
	assert.NotContains(t, a, "1.2.3")
}

func TestRedactSignalValue_IPs(t *testing.T) {
	got := RedactSignalValue("seen from 192.168.1.17 twice")
	assert.NotContains(t, got, "192.168.1.17")
	assert.Contains(t, got, RedactedText)
}

func TestRedactSignalValue_CIDR(t *testing.T) {
	got := RedactSignalValue("1.2.3.0/24")
	assert.Equal(t, RedactedText, got)
}

func TestRedactSignalValue_Email(t *testing.T) {
	got := RedactSignalValue("registered with sock@example.org")
	assert.NotContains(t, got, "sock@example.org")
}

func TestRedactSignalValue_TruncatesLongValues(t *testing.T) {
	got := RedactSignalValue(strings.Repeat("x", 200))
	assert.Len(t, got, MaxValueLogLength+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestRedactSignalValue_Empty(t *testing.T) {
	assert.Equal(t, "", RedactSignalValue(""))
}

func TestSanitizeConnectionString(t *testing.T) {
	got := SanitizeConnectionString("host=db password=hunter2 dbname=cases")
	assert.NotContains(t, got, "hunter2")

	got = SanitizeConnectionString("postgres://engine:secret@db:5432/cases")
	assert.NotContains(t, got, "secret")
}
