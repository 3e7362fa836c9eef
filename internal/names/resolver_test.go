package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Candidate
	}{
		{"my name is", "Hello everyone, my name is Alice Chen.", []Candidate{{"Alice Chen", 0.95}}},
		{"i am stops at blocked token", "I am Bob and I study physics", []Candidate{{"Bob", 0.90}}},
		{"i'm", "hi, I'm carol", []Candidate{{"Carol", 0.90}}},
		{"call me", "please call me Dee", []Candidate{{"Dee", 0.88}}},
		{"leading blocked token rejected", "I am going to talk about data", nil},
		{"too many tokens", "my name is ann bea cat dee eve", nil},
		{"empty", "", nil},
		{"no pattern", "the weather is nice today", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractKeepsHighestConfidence(t *testing.T) {
	got := Extract("I'm Alice. Sorry, my name is Alice. You can call me Bo")
	require.Len(t, got, 2)
	assert.Equal(t, Candidate{"Alice", 0.95}, got[0])
	assert.Equal(t, Candidate{"Bo", 0.88}, got[1])
}

func TestBest(t *testing.T) {
	c, ok := Best("my name is dana")
	require.True(t, ok)
	assert.Equal(t, "Dana", c.Name)

	_, ok = Best("nothing here")
	assert.False(t, ok)
}
