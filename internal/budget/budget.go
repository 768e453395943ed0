// Package budget estimates how many generation units ("tokens") a text costs.
//
// DESIGN: The router only needs a cheap, monotonic estimate to compare against
// a budget, not an exact count. The default RatioEstimator divides the rune
// count by a calibrated chars-per-token ratio (~1.5 for mixed CJK/Latin chat).
// TiktokenEstimator is available when BPE-accurate counts are wanted.
package budget

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultCharsPerToken is calibrated for mixed CJK/Latin chat text.
	DefaultCharsPerToken = 1.5

	// DefaultAverageLength is used when a corpus sample has no characters.
	DefaultAverageLength = 50.0

	// AverageSampleSize bounds how many texts AverageLength inspects.
	AverageSampleSize = 100

	// DefaultEncoding is the BPE encoding used by TiktokenEstimator.
	DefaultEncoding = "cl100k_base"
)

// Estimator converts text into an estimated unit count.
type Estimator interface {
	Estimate(text string) int
}

// RatioEstimator estimates units as runes / CharsPerToken.
type RatioEstimator struct {
	CharsPerToken float64
}

// NewRatioEstimator returns an estimator with the given ratio.
// Non-positive ratios fall back to DefaultCharsPerToken.
func NewRatioEstimator(charsPerToken float64) RatioEstimator {
	return RatioEstimator{CharsPerToken: charsPerToken}
}

func (e RatioEstimator) ratio() float64 {
	if e.CharsPerToken <= 0 {
		return DefaultCharsPerToken
	}
	return e.CharsPerToken
}

// Estimate implements Estimator.
func (e RatioEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return int(float64(utf8.RuneCountInString(text)) / e.ratio())
}

// CharsFor converts a unit budget into a character budget.
func (e RatioEstimator) CharsFor(units int) int {
	if units <= 0 {
		return 0
	}
	return int(float64(units) * e.ratio())
}

// AverageLength returns the mean rune length of the first AverageSampleSize
// texts. An empty sample or a zero mean yields DefaultAverageLength.
func AverageLength(texts []string) float64 {
	n := len(texts)
	if n == 0 {
		return DefaultAverageLength
	}
	if n > AverageSampleSize {
		n = AverageSampleSize
	}
	total := 0
	for _, t := range texts[:n] {
		total += utf8.RuneCountInString(t)
	}
	avg := float64(total) / float64(n)
	if avg == 0 {
		return DefaultAverageLength
	}
	return avg
}

// EstimateCorpus estimates the unit cost of a large corpus from a bounded
// sample: len(texts) * AverageLength(texts) / ratio.
func EstimateCorpus(texts []string, e RatioEstimator) int {
	if len(texts) == 0 {
		return 0
	}
	return int(float64(len(texts)) * AverageLength(texts) / e.ratio())
}

// =============================================================================
// TIKTOKEN
// =============================================================================

// TiktokenEstimator counts BPE tokens. The encoding is loaded lazily on first
// use; if it cannot be loaded the Fallback estimator is used instead.
type TiktokenEstimator struct {
	Encoding string
	Fallback Estimator

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenEstimator creates a lazily initialized BPE estimator.
func NewTiktokenEstimator(encoding string, fallback Estimator) *TiktokenEstimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if fallback == nil {
		fallback = NewRatioEstimator(DefaultCharsPerToken)
	}
	return &TiktokenEstimator{Encoding: encoding, Fallback: fallback}
}

// Estimate implements Estimator.
func (e *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.Encoding)
		if err != nil {
			log.Warn().Err(err).Str("encoding", e.Encoding).Msg("tiktoken encoding unavailable, using ratio estimator")
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return e.Fallback.Estimate(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}

var (
	_ Estimator = RatioEstimator{}
	_ Estimator = (*TiktokenEstimator)(nil)
)
