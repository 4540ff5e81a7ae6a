package usage

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// Estimator turns text into a token count used for reservations.
type Estimator interface {
	Count(text string) int
}

// TiktokenEstimator counts with the cl100k_base encoding. If the codec cannot be
// loaded it falls back to roughly four bytes per token.
type TiktokenEstimator struct {
	once  sync.Once
	codec tokenizer.Codec
}

func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{}
}

func (e *TiktokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Str("component", "usage").Msg("tiktoken codec unavailable, using byte heuristic")
			return
		}
		e.codec = codec
	})
	if e.codec == nil {
		return ByteEstimate(text)
	}
	ids, _, err := e.codec.Encode(text)
	if err != nil {
		return ByteEstimate(text)
	}
	return len(ids)
}

// ByteEstimate is the fallback heuristic: one token per four bytes, at least one.
func ByteEstimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// FixedEstimator charges the same amount for every call. Useful in tests.
type FixedEstimator int

func (f FixedEstimator) Count(string) int { return int(f) }
