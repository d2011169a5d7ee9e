// Package encode turns text tokens into fixed-length feature vectors.
//
// The encoder is deterministic and stateless: the same token always produces
// a byte-identical vector, across processes and platforms. No learned
// parameters are involved, which makes every downstream component (quantizer,
// clusters, novelty scoring) reproducible from inputs alone.
//
// The 128-dimension output is divided into four fixed sections:
//   - [0, 32)    orthographic shape (length, case, character classes)
//   - [32, 80)   hashed character n-grams (2- and 3-grams, signed buckets)
//   - [80, 104)  phonetic heuristics (initial sound, vowel pattern, soundex)
//   - [104, 128) statistical features (entropy, letter frequency, commonality)
//
// Slots a section leaves at zero are filled with a stable blake2b hash of
// token|section|index scaled into [-0.5, 0.5], so every dimension carries
// signal without breaking determinism. The final vector is L2-normalized.
//
// Example:
//
//	enc := encode.NewFeatureEncoder()
//	v := enc.Encode("apple")   // 128-dim unit vector
//	v2 := enc.Encode("apple")  // byte-identical to v
package encode

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/munindb/pkg/math/vector"
)

// Dim is the feature vector dimension. Every vector the engine touches has
// exactly this length.
const Dim = 128

// Section boundaries within the vector.
const (
	orthoStart = 0
	orthoEnd   = 32
	ngramStart = 32
	ngramEnd   = 80
	phonStart  = 80
	phonEnd    = 104
	statStart  = 104
	statEnd    = 128
)

// Encoder converts a token to a feature vector.
// The interface allows wrapping implementations (see CachedEncoder).
type Encoder interface {
	Encode(token string) []float64
	Dim() int
}

// FeatureEncoder is the deterministic reference implementation of Encoder.
// Safe for concurrent use: it holds no mutable state.
type FeatureEncoder struct{}

// NewFeatureEncoder creates a FeatureEncoder.
func NewFeatureEncoder() *FeatureEncoder {
	return &FeatureEncoder{}
}

// Dim returns the output vector length.
func (e *FeatureEncoder) Dim() int { return Dim }

// Encode maps a token to a 128-dim unit vector. Deterministic: identical
// tokens yield bit-identical vectors. The returned slice is freshly
// allocated and owned by the caller; treat it as immutable once shared.
func (e *FeatureEncoder) Encode(token string) []float64 {
	v := make([]float64, Dim)
	lower := strings.ToLower(token)

	encodeOrthographic(v, token)
	encodeNGrams(v, lower)
	encodePhonetic(v, lower)
	encodeStatistical(v, lower)
	fillEmptySlots(v, token)

	vector.NormalizeInPlace(v)
	return v
}

// vowels in the heuristic sense used throughout this package.
func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// encodeOrthographic fills [0, 32) with shape features computed from the
// token as given (case matters here, nowhere else).
func encodeOrthographic(v []float64, token string) {
	runes := []rune(token)
	n := len(runes)
	if n == 0 {
		return
	}

	v[0] = math.Min(1.0, float64(n)/16.0)

	var upper, digits, punct, ascii, vowels, doubles int
	for i, r := range runes {
		if unicode.IsUpper(r) {
			upper++
		}
		if unicode.IsDigit(r) {
			digits++
		}
		if unicode.IsPunct(r) {
			punct++
		}
		if r < 128 {
			ascii++
		}
		if isVowel(unicode.ToLower(r)) {
			vowels++
		}
		if i > 0 && runes[i-1] == r {
			doubles++
		}
	}

	if unicode.IsUpper(runes[0]) {
		v[1] = 1.0
	}
	v[2] = float64(upper) / float64(n)
	if n > 1 && upper == n {
		v[3] = 1.0
	}
	if unicode.IsUpper(runes[0]) && upper == 1 {
		v[4] = 1.0 // title case
	}
	if strings.ContainsRune(token, '-') {
		v[5] = 1.0
	}
	if strings.ContainsRune(token, '\'') {
		v[6] = 1.0
	}
	if digits > 0 {
		v[7] = 1.0
	}
	v[8] = float64(digits) / float64(n)
	v[9] = float64(vowels) / float64(n)
	v[10] = float64(n-vowels-digits-punct) / float64(n)

	first := unicode.ToLower(runes[0])
	last := unicode.ToLower(runes[n-1])
	if isVowel(first) {
		v[11] = 1.0
	}
	if isVowel(last) {
		v[12] = 1.0
	}
	if doubles > 0 {
		v[13] = 1.0
	}
	v[14] = float64(doubles) / float64(n)
	if first >= 'a' && first <= 'z' {
		v[15] = float64(first-'a') / 25.0
	}
	if last >= 'a' && last <= 'z' {
		v[16] = float64(last-'a') / 25.0
	}

	// Length buckets
	switch {
	case n == 1:
		v[17] = 1.0
	case n <= 3:
		v[18] = 1.0
	case n <= 6:
		v[19] = 1.0
	case n <= 9:
		v[20] = 1.0
	default:
		v[21] = 1.0
	}

	v[22] = float64(punct) / float64(n)
	v[23] = float64(ascii) / float64(n)
}

// encodeNGrams fills [32, 80) with signed hash buckets of character 2- and
// 3-grams. The sign comes from a high hash bit so collisions partially
// cancel instead of piling up.
func encodeNGrams(v []float64, lower string) {
	runes := []rune(lower)
	width := ngramEnd - ngramStart
	total := 0

	accumulate := func(g string) {
		h := xxhash.Sum64String(g)
		bucket := int(h % uint64(width))
		sign := 1.0
		if (h>>32)&1 == 1 {
			sign = -1.0
		}
		v[ngramStart+bucket] += sign
		total++
	}

	for i := 0; i+2 <= len(runes); i++ {
		accumulate(string(runes[i : i+2]))
	}
	for i := 0; i+3 <= len(runes); i++ {
		accumulate(string(runes[i : i+3]))
	}

	if total == 0 {
		return
	}
	scale := 1.0 / math.Sqrt(float64(total))
	for i := ngramStart; i < ngramEnd; i++ {
		v[i] *= scale
	}
}

// soundClass buckets an initial rune into one of eight rough articulation
// classes, one-hot encoded at the start of the phonetic section.
func soundClass(r rune) int {
	switch {
	case isVowel(r):
		return 0
	case strings.ContainsRune("bp", r):
		return 1
	case strings.ContainsRune("dt", r):
		return 2
	case strings.ContainsRune("gk", r):
		return 3
	case strings.ContainsRune("fvsz", r):
		return 4
	case strings.ContainsRune("mn", r):
		return 5
	case strings.ContainsRune("lr", r):
		return 6
	default:
		return 7
	}
}

// soundexDigit maps a rune to its soundex group, 0 when unmapped.
func soundexDigit(r rune) int {
	switch {
	case strings.ContainsRune("bfpv", r):
		return 1
	case strings.ContainsRune("cgjkqsxz", r):
		return 2
	case strings.ContainsRune("dt", r):
		return 3
	case r == 'l':
		return 4
	case strings.ContainsRune("mn", r):
		return 5
	case r == 'r':
		return 6
	}
	return 0
}

// encodePhonetic fills [80, 104) with pronunciation heuristics.
func encodePhonetic(v []float64, lower string) {
	runes := []rune(lower)
	n := len(runes)
	if n == 0 {
		return
	}

	v[phonStart+soundClass(runes[0])] = 1.0

	// Vowel clusters ("ea" counts once) and longest consonant run.
	clusters := 0
	maxRun, run := 0, 0
	inVowel := false
	for _, r := range runes {
		if isVowel(r) {
			if !inVowel {
				clusters++
			}
			inVowel = true
			if run > maxRun {
				maxRun = run
			}
			run = 0
		} else {
			inVowel = false
			run++
		}
	}
	if run > maxRun {
		maxRun = run
	}
	v[phonStart+8] = math.Min(1.0, float64(clusters)/4.0)
	v[phonStart+9] = math.Min(1.0, float64(maxRun)/4.0)

	if n >= 2 && runes[n-1] == 'e' && !isVowel(runes[n-2]) {
		v[phonStart+10] = 1.0 // silent-e heuristic
	}

	// First three soundex digits after the initial rune.
	slot := phonStart + 11
	prev := 0
	for i := 1; i < n && slot < phonStart+14; i++ {
		d := soundexDigit(runes[i])
		if d != 0 && d != prev {
			v[slot] = float64(d) / 6.0
			slot++
		}
		prev = d
	}

	// Rhyme bucket from the final two runes.
	if n >= 2 {
		h := xxhash.Sum64String(string(runes[n-2:]))
		v[phonStart+14] = float64(h%1000) / 999.0
	}
}

// letterFreq is relative English letter frequency, a..z.
var letterFreq = [26]float64{
	0.0817, 0.0149, 0.0278, 0.0425, 0.1270, 0.0223, 0.0202, 0.0609, 0.0697,
	0.0015, 0.0077, 0.0403, 0.0241, 0.0675, 0.0751, 0.0193, 0.0010, 0.0599,
	0.0633, 0.0906, 0.0276, 0.0098, 0.0236, 0.0015, 0.0197, 0.0007,
}

var commonBigrams = map[string]struct{}{
	"th": {}, "he": {}, "in": {}, "er": {}, "an": {}, "re": {}, "nd": {},
	"at": {}, "on": {}, "nt": {}, "ha": {}, "es": {}, "st": {}, "en": {},
	"ed": {}, "to": {}, "it": {}, "ou": {}, "ea": {}, "hi": {},
}

// encodeStatistical fills [104, 128) with distributional features.
func encodeStatistical(v []float64, lower string) {
	runes := []rune(lower)
	n := len(runes)
	if n == 0 {
		return
	}

	counts := make(map[rune]int, n)
	for _, r := range runes {
		counts[r]++
	}

	// Shannon entropy over rune frequencies, normalized by log2(26).
	var entropy float64
	maxCount := 0
	for _, c := range counts {
		p := float64(c) / float64(n)
		entropy -= p * math.Log2(p)
		if c > maxCount {
			maxCount = c
		}
	}
	v[statStart] = math.Min(1.0, entropy/math.Log2(26))
	v[statStart+1] = float64(len(counts)) / float64(n)
	v[statStart+2] = float64(maxCount) / float64(n)

	// Mean English letter frequency and rarity.
	var freqSum float64
	letters := 0
	for _, r := range runes {
		if r >= 'a' && r <= 'z' {
			freqSum += letterFreq[r-'a']
			letters++
		}
	}
	if letters > 0 {
		mean := freqSum / float64(letters)
		v[statStart+3] = math.Min(1.0, mean/0.127)
		v[statStart+4] = 1.0 - math.Min(1.0, mean/0.127)
	}

	// Fraction of bigrams that are among the most common in English.
	if n >= 2 {
		common := 0
		for i := 0; i+2 <= n; i++ {
			if _, ok := commonBigrams[string(runes[i:i+2])]; ok {
				common++
			}
		}
		v[statStart+5] = float64(common) / float64(n-1)
	}

	// Rough corpus-frequency heuristic: short tokens tend to be common.
	v[statStart+6] = 1.0 / (1.0 + 0.3*float64(n))
	v[statStart+7] = float64(n-len(counts)) / float64(n) // repetition ratio
}

// sectionName labels each slot's section for the filler hash input.
func sectionName(i int) string {
	switch {
	case i < orthoEnd:
		return "ortho"
	case i < ngramEnd:
		return "ngram"
	case i < phonEnd:
		return "phon"
	default:
		return "stat"
	}
}

// fillEmptySlots replaces every zero slot with a stable hash of
// token|section|index scaled into [-0.5, 0.5]. Slots a section computed to
// exactly zero are treated the same as untouched ones; either way the value
// is a pure function of the token.
func fillEmptySlots(v []float64, token string) {
	for i := range v {
		if v[i] != 0 {
			continue
		}
		h := blake2b.Sum256([]byte(token + "|" + sectionName(i) + "|" + strconv.Itoa(i)))
		u := binary.BigEndian.Uint64(h[:8])
		v[i] = float64(u)/float64(math.MaxUint64) - 0.5
	}
}
