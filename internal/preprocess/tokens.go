package preprocess

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// estimateTokens reports the approximate token count of the payload's
// text content, for sizing logs only. Returns 0 when the tokenizer is
// unavailable.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	if codec == nil {
		return 0
	}
	n, err := codec.Count(text)
	if err != nil {
		return 0
	}
	return n
}
