package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccardIdentical(t *testing.T) {
	first := MinHashFromCharacters("google.com", 0)
	second := MinHashFromCharacters("google.com", 0)
	assert.Equal(t, 1.0, first.Jaccard(second))
}

func TestJaccardDisjoint(t *testing.T) {
	first := MinHashFromCharacters("abcdef", 0)
	second := MinHashFromCharacters("123456", 0)
	assert.Less(t, first.Jaccard(second), 0.2)
}

func TestJaccardSimilarDomains(t *testing.T) {
	// Same character set, one extra 'o'. Character shingles make
	// these nearly identical.
	first := MinHashFromCharacters("google", 0)
	second := MinHashFromCharacters("gooogle", 0)
	assert.Greater(t, first.Jaccard(second), 0.9)
}

func TestShinglesFromText(t *testing.T) {
	shingles := ShinglesFromText("a-quick/brown  fox", nil)
	assert.Equal(t, []string{"a", "quick", "brown", "fox"}, shingles)
}

func TestMinHashFromTextOrderIndependent(t *testing.T) {
	first := MinHashFromText("brown fox quick", 0, nil)
	second := MinHashFromText("quick brown fox", 0, nil)
	assert.Equal(t, 1.0, first.Jaccard(second))
}

func TestLongestCommonSubstring(t *testing.T) {
	assert.Equal(t, 6, LongestCommonSubstring("mygoogle", "google"))
	assert.Equal(t, 0, LongestCommonSubstring("", "google"))
	assert.Equal(t, 1, LongestCommonSubstring("abc", "cde"))
}
