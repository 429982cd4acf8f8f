package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"150,000円", 150000},
		{"1,234,567円", 1234567},
		{"500円", 500},
		{"0円", 0},
		{" 42,000 円 ", 42000},
		{"99999", 99999},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePrice(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePriceRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "-", "n/a", "価格不明"} {
		_, err := parsePrice(in)
		assert.Error(t, err, in)
	}
}
