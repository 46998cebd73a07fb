package utils

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var encoding = sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
	return tiktoken.GetEncoding("cl100k_base")
})

// NumTokens counts cl100k tokens in text. When the encoding cannot be
// loaded it falls back to an estimate of one token per four runes.
func NumTokens(text string) int {
	tkm, err := encoding()
	if err != nil {
		return (runeLen(text) + 3) / 4
	}
	return len(tkm.Encode(text, nil, nil))
}
