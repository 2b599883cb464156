package tag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeTrims(t *testing.T) {
	assert.Equal(t, "[REF:INV-001]", Encode("  INV-001 "))
}

func TestBuildBody(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want string
	}{
		{"blank", "", "[REF:A1]"},
		{"whitespace", "  \n ", "[REF:A1]"},
		{"text", "  pay before noon ", "pay before noon\n\n[REF:A1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildBody(tt.desc, "A1"))
		})
	}
}

func TestBuildBodyRoundTrip(t *testing.T) {
	refs := []string{"INV-001", "a b c", "42", "ünïcode/ref"}
	descs := []string{"", "plain", "multi\nline\n\n[REF:other]", "ends with [REF:"}
	for _, ref := range refs {
		for _, desc := range descs {
			body := BuildBody(desc, ref)
			assert.True(t, Contains(body, ref), "ref=%q desc=%q", ref, desc)
			assert.True(t, strings.HasSuffix(body, Encode(ref)))
		}
	}
}

func TestContainsDistinguishesReferences(t *testing.T) {
	body := BuildBody("x", "INV-10")
	assert.False(t, Contains(body, "INV-1"))
	assert.True(t, Contains(body, "INV-10"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("INV-001"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("A]B"))
	assert.False(t, Valid("[REF:X"))
}
