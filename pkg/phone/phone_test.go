package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer("IN")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"national", "98765 43210", "+919876543210"},
		{"international with dashes", "+91 98765-43210", "+919876543210"},
		{"us number", "+1 (650) 253-0000", "+16502530000"},
		{"unparseable keeps digits", "12", "12"},
		{"unparseable keeps plus", "+12", "+12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Empty(t *testing.T) {
	n := NewNormalizer("")
	_, err := n.Normalize("   ")
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = n.Normalize("abc")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCandidates(t *testing.T) {
	n := NewNormalizer("IN")
	assert.Equal(t, []string{"+919876543210", "98765 43210"}, n.Candidates(" 98765 43210 "))
	assert.Equal(t, []string{"+919876543210"}, n.Candidates("+919876543210"))
}

func TestLastDigits(t *testing.T) {
	assert.Equal(t, "3210", LastDigits("+91 98765 43210", 4))
	assert.Equal(t, "12", LastDigits("12", 4))
}
