package tokenizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Tiktoken counts tokens locally with the BPE encoding that matches the model
// family. Models it does not recognise, Claude and Gemini included, are
// approximated with cl100k_base.
type Tiktoken struct {
	mu     sync.Mutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

func NewTiktoken() *Tiktoken {
	return &Tiktoken{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

//nolint:gochecknoglobals // static lookup table
var o200kPrefixes = []string{"gpt-4o", "gpt-4.1", "gpt-4.5", "gpt-5", "o1", "o3", "o4"}

// EncodingFor returns the encoding used for modelID.
func EncodingFor(modelID string) tokenizer.Encoding {
	id := strings.ToLower(modelID)
	for _, p := range o200kPrefixes {
		if strings.HasPrefix(id, p) {
			return tokenizer.O200kBase
		}
	}
	return tokenizer.Cl100kBase
}

func (t *Tiktoken) codec(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.codecs[enc]; ok {
		return c, nil
	}
	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load %s codec: %w", enc, err)
	}
	t.codecs[enc] = c
	return c, nil
}

func (t *Tiktoken) Count(ctx context.Context, text, modelID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c, err := t.codec(EncodingFor(modelID))
	if err != nil {
		return 0, err
	}
	n, err := c.Count(text)
	if err != nil {
		return 0, fmt.Errorf("tiktoken count: %w", err)
	}
	return n, nil
}
