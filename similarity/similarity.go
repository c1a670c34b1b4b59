// Package similarity implements the MinHash based scoring used to
// compare event text and domain names. Signatures estimate Jaccard
// similarity between token sets without keeping the sets around.
package similarity

import (
	"hash/fnv"
	"math/rand"
	"regexp"
	"strings"
)

const (
	DefaultThreshold    = 0.5
	DefaultPermutations = 128

	// Large prime for the universal hash family (2^61 - 1).
	mersenne_prime = uint64(1)<<61 - 1
)

var DefaultDelimiters = []string{" ", "-", "/"}

// Permutation coefficients are fixed across the process so
// signatures built at different times remain comparable.
type permutation struct {
	a, b uint64
}

var permutations = func() []permutation {
	rng := rand.New(rand.NewSource(1))
	result := make([]permutation, DefaultPermutations)
	for i := range result {
		result[i] = permutation{
			a: uint64(rng.Int63())%(mersenne_prime-1) + 1,
			b: uint64(rng.Int63()) % mersenne_prime,
		}
	}
	return result
}()

type MinHash struct {
	values []uint64
}

func NewMinHash(num_perm int) *MinHash {
	if num_perm <= 0 || num_perm > DefaultPermutations {
		num_perm = DefaultPermutations
	}

	values := make([]uint64, num_perm)
	for i := range values {
		values[i] = mersenne_prime
	}
	return &MinHash{values: values}
}

// Update folds one set member into the signature.
func (self *MinHash) Update(member []byte) {
	hasher := fnv.New64a()
	_, _ = hasher.Write(member)
	base := hasher.Sum64() % mersenne_prime

	for i := range self.values {
		hashed := (permutations[i].a*base + permutations[i].b) % mersenne_prime
		if hashed < self.values[i] {
			self.values[i] = hashed
		}
	}
}

// Jaccard estimates the similarity of the sets behind two signatures.
func (self *MinHash) Jaccard(other *MinHash) float64 {
	if other == nil || len(other.values) != len(self.values) {
		return 0
	}

	matching := 0
	for i := range self.values {
		if self.values[i] == other.values[i] {
			matching++
		}
	}
	return float64(matching) / float64(len(self.values))
}

// ShinglesFromText splits text into words on the delimiters, dropping
// empty strings.
func ShinglesFromText(text string, delimiters []string) []string {
	if len(delimiters) == 0 {
		delimiters = DefaultDelimiters
	}

	quoted := make([]string, 0, len(delimiters))
	for _, delim := range delimiters {
		quoted = append(quoted, regexp.QuoteMeta(delim))
	}
	splitter := regexp.MustCompile(strings.Join(quoted, "|"))

	result := []string{}
	for _, word := range splitter.Split(text, -1) {
		if word != "" {
			result = append(result, word)
		}
	}
	return result
}

// MinHashFromText builds a signature over the word shingles of text.
func MinHashFromText(
	text string, num_perm int, delimiters []string) *MinHash {
	minhash := NewMinHash(num_perm)
	for _, word := range ShinglesFromText(text, delimiters) {
		minhash.Update([]byte(word))
	}
	return minhash
}

// MinHashFromCharacters builds a signature over the individual
// characters of text. Used for short strings like domain names where
// word shingles are useless.
func MinHashFromCharacters(text string, num_perm int) *MinHash {
	minhash := NewMinHash(num_perm)
	for _, char := range text {
		minhash.Update([]byte(string(char)))
	}
	return minhash
}

// LongestCommonSubstring returns the length of the longest contiguous
// run shared by both strings.
func LongestCommonSubstring(first, second string) int {
	a := []rune(first)
	b := []rune(second)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	longest := 0

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				current[j] = previous[j-1] + 1
				if current[j] > longest {
					longest = current[j]
				}
			} else {
				current[j] = 0
			}
		}
		previous, current = current, previous
	}
	return longest
}
