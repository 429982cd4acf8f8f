package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/domain"
)

func newTestClassifier(response string, err error) (*GeminiClassifier, *[]string) {
	g := NewGeminiClassifier("gemini-2.5-flash", time.Second, zap.NewNop())
	var prompts []string
	g.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		prompts = append(prompts, strings.Join(append([]string{name}, args...), " "))
		if err != nil {
			return nil, err
		}
		return []byte(response), nil
	}
	return g, &prompts
}

func TestClassifyPositive(t *testing.T) {
	g, prompts := newTestClassifier("はい、これはアニメ作品です。", nil)

	class, err := g.Classify(context.Background(), "鬼滅の刃")
	require.NoError(t, err)
	assert.Equal(t, domain.ClassPositive, class)

	require.Len(t, *prompts, 1)
	assert.Contains(t, (*prompts)[0], "鬼滅の刃")
	assert.Contains(t, (*prompts)[0], "-m gemini-2.5-flash")
}

func TestClassifyNegative(t *testing.T) {
	g, _ := newTestClassifier("いいえ、アニメ作品ではありません。", nil)

	class, err := g.Classify(context.Background(), "掃除機 パーツ")
	require.NoError(t, err)
	assert.Equal(t, domain.ClassNegative, class)
}

func TestClassifyEmptyKeySkipsSubprocess(t *testing.T) {
	g, prompts := newTestClassifier("はい", nil)

	class, err := g.Classify(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, domain.ClassNegative, class)
	assert.Empty(t, *prompts, "no point asking about an empty title")
}

func TestClassifySubprocessErrorIsUnknown(t *testing.T) {
	g, _ := newTestClassifier("", errors.New("exit status 1"))

	class, err := g.Classify(context.Background(), "何か")
	require.Error(t, err)
	assert.Equal(t, domain.ClassUnknown, class)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     domain.Classification
	}{
		{"explicit yes", "はい、そうです。", domain.ClassPositive},
		{"anime mention without yes", "これは人気アニメのタイトルです。", domain.ClassPositive},
		{"explicit no", "いいえ。", domain.ClassNegative},
		{"negation beats anime mention", "いいえ、アニメ作品ではありません。", domain.ClassNegative},
		{"negation beats yes", "はい...ではない、と思います。", domain.ClassNegative},
		{"polite negation", "アニメ作品ではありません。", domain.ClassNegative},
		{"unrelated answer", "家電製品のようです。", domain.ClassNegative},
		{"empty response", "", domain.ClassNegative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseResponse(tt.response))
		})
	}
}
