package hfsunicode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoStringRoundTrip(t *testing.T) {
	s := FromGoString("Aloha été")
	require.Equal(t, "Aloha été", ToGoString(s))
}

func TestCompareCaseFoldedIgnoresCase(t *testing.T) {
	a := FromGoString("Documents")
	b := FromGoString("documents")
	require.Equal(t, 0, CompareCaseFolded(a, b))
}

func TestCompareCaseFoldedOrdersLexicographically(t *testing.T) {
	a := FromGoString("apple")
	b := FromGoString("banana")
	require.Negative(t, CompareCaseFolded(a, b))
	require.Positive(t, CompareCaseFolded(b, a))
}

func TestMacRomanRoundTrip(t *testing.T) {
	encoded, err := EncodeMacRoman("Macintosh HD")
	require.NoError(t, err)
	decoded, err := DecodeMacRoman(encoded)
	require.NoError(t, err)
	require.Equal(t, "Macintosh HD", decoded)
}
