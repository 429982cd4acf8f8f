package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/domain"
)

// CSVExporter writes checkpoint files under a directory. Files carry a
// UTF-8 BOM so the Japanese headers open correctly in spreadsheet tools.
type CSVExporter struct {
	outputDir string
	logger    *zap.Logger
	now       func() time.Time
}

func NewCSVExporter(outputDir string, logger *zap.Logger) *CSVExporter {
	return &CSVExporter{outputDir: outputDir, logger: logger, now: time.Now}
}

var header = []string{"セラー名", "セラーページURL", "二次創作"}

// ExportIntermediate writes the checkpoint taken after all fetches settle
// and before classification; every row is labeled pending.
func (e *CSVExporter) ExportIntermediate(results []domain.CollectionResult) (string, error) {
	path := e.filepath("")
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Name, r.Locator, domain.LabelPending})
	}
	if err := e.write(path, rows); err != nil {
		return "", err
	}
	e.logger.Info("intermediate csv exported", zap.String("path", path), zap.Int("rows", len(rows)))
	return path, nil
}

// ExportFinal writes the post-classification checkpoint.
func (e *CSVExporter) ExportFinal(results []domain.CollectionResult) (string, error) {
	path := e.filepath("_final")
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Name, r.Locator, r.Classification.Label()})
	}
	if err := e.write(path, rows); err != nil {
		return "", err
	}
	e.logger.Info("final csv exported", zap.String("path", path), zap.Int("rows", len(rows)))
	return path, nil
}

func (e *CSVExporter) filepath(suffix string) string {
	timestamp := e.now().Format("20060102_150405")
	return filepath.Join(e.outputDir, fmt.Sprintf("sellers_%s%s.csv", timestamp, suffix))
}

func (e *CSVExporter) write(path string, rows [][]string) error {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	// UTF-8 BOM for Excel compatibility with Japanese text.
	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
