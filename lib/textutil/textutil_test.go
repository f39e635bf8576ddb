package textutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"Attack on Titan", "attackontitan"},
		{"Attack On Titan!!", "attackontitan"},
		{"  ONE   PIECE  ", "onepiece"},
		{"Re:Zero − Starting Life in Another World", "rezerostartinglifeinanotherworld"},
		{"86", "86"},
		{"", ""},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%q", tc.input), func(t *testing.T) {
			require.Equal(t, tc.expected, NormalizeTitle(tc.input))
		})
	}
}

func TestCollapseWhitespace(t *testing.T) {
	require.Equal(t, "a b c", CollapseWhitespace("  a\n\tb   c "))
}

func TestDigitsOnly(t *testing.T) {
	require.Equal(t, "12", DigitsOnly("Sub: 12"))
	require.Equal(t, "", DigitsOnly("none"))
}
