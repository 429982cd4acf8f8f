package classify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/domain"
)

// GeminiClassifier answers the anime-title question by shelling out to the
// gemini CLI. Raw response text never leaves this package; callers only see
// the three-valued classification.
type GeminiClassifier struct {
	model   string
	timeout time.Duration
	logger  *zap.Logger
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewGeminiClassifier(model string, timeout time.Duration, logger *zap.Logger) *GeminiClassifier {
	return &GeminiClassifier{
		model:   model,
		timeout: timeout,
		logger:  logger,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Classify asks whether the key names an anime work. Subprocess failures
// and timeouts yield ClassUnknown together with the underlying error.
func (g *GeminiClassifier) Classify(ctx context.Context, key string) (domain.Classification, error) {
	if strings.TrimSpace(key) == "" {
		return domain.ClassNegative, nil
	}

	prompt := fmt.Sprintf("このタイトルはアニメ作品ですか?(タイトル: %s)", key)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.run(ctx, "gemini", "-m", g.model, "-p", prompt)
	if err != nil {
		return domain.ClassUnknown, fmt.Errorf("gemini cli: %w", err)
	}

	response := strings.TrimSpace(string(out))
	g.logger.Debug("classifier response", zap.String("key", key), zap.Int("length", len(response)))
	return parseResponse(response), nil
}

var negativeMarkers = []string{"いいえ", "ではありません", "ではない"}

// parseResponse reduces the free-text oracle answer to the fixed result
// type. An explicit positive beats an incidental "アニメ" mention, and any
// negation marker forces a negative.
func parseResponse(response string) domain.Classification {
	negative := false
	for _, marker := range negativeMarkers {
		if strings.Contains(response, marker) {
			negative = true
			break
		}
	}
	if strings.Contains(response, "はい") && !negative {
		return domain.ClassPositive
	}
	if strings.Contains(response, "アニメ") && !negative {
		return domain.ClassPositive
	}
	return domain.ClassNegative
}
