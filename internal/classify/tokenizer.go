package classify

import (
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Tokenizer splits a product label into semantically meaningful tokens.
type Tokenizer interface {
	Tokens(text string) ([]string, error)
}

// KagomeTokenizer is the morphological analyzer used for Japanese product
// titles, where whitespace splitting is unreliable.
type KagomeTokenizer struct {
	t *tokenizer.Tokenizer
}

func NewKagomeTokenizer() (*KagomeTokenizer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &KagomeTokenizer{t: t}, nil
}

func (k *KagomeTokenizer) Tokens(text string) ([]string, error) {
	tokens := k.t.Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		features := tok.Features()
		// Skip punctuation and whitespace-class tokens.
		if len(features) > 0 && features[0] == "記号" {
			continue
		}
		surface := strings.TrimSpace(tok.Surface)
		if surface != "" {
			out = append(out, surface)
		}
	}
	return out, nil
}

// ClassificationKey derives the short key sent to the classifier: the first
// maxTokens meaningful tokens of the label. When the tokenizer is
// unavailable or fails it falls back to a naive whitespace split and
// reports degraded=true; the caller records telemetry but never aborts.
func ClassificationKey(tok Tokenizer, label string, maxTokens int) (key string, degraded bool) {
	var words []string
	if tok != nil {
		if t, err := tok.Tokens(label); err == nil {
			words = t
		} else {
			degraded = true
		}
	} else {
		degraded = true
	}
	if degraded {
		words = strings.Fields(label)
	}
	if len(words) > maxTokens {
		words = words[:maxTokens]
	}
	return strings.Join(words, " "), degraded
}
