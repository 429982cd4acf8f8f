package classify

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeTokenizer struct {
	err error
}

func (f *fakeTokenizer) Tokens(text string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return strings.Split(text, "/"), nil
}

func TestClassificationKey(t *testing.T) {
	key, degraded := ClassificationKey(&fakeTokenizer{}, "鬼滅の刃/フィギュア/限定版", 2)
	assert.False(t, degraded)
	assert.Equal(t, "鬼滅の刃 フィギュア", key)
}

func TestClassificationKeyShortLabel(t *testing.T) {
	key, degraded := ClassificationKey(&fakeTokenizer{}, "鬼滅の刃", 2)
	assert.False(t, degraded)
	assert.Equal(t, "鬼滅の刃", key, "fewer tokens than the cap is fine")
}

func TestClassificationKeyNilTokenizerDegrades(t *testing.T) {
	key, degraded := ClassificationKey(nil, "one two three", 2)
	assert.True(t, degraded)
	assert.Equal(t, "one two", key, "whitespace fallback still yields a usable key")
}

func TestClassificationKeyTokenizerErrorDegrades(t *testing.T) {
	tok := &fakeTokenizer{err: errors.New("dictionary not loaded")}
	key, degraded := ClassificationKey(tok, "one two three", 2)
	assert.True(t, degraded)
	assert.Equal(t, "one two", key)
}

func TestClassificationKeyEmptyLabel(t *testing.T) {
	key, degraded := ClassificationKey(nil, "", 2)
	assert.True(t, degraded)
	assert.Equal(t, "", key)
}
