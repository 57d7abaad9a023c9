package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("处理失败: %w", E(KindIndexBuild, "local.Build", cause))

	assert.True(t, errors.Is(err, ErrIndexBuild))
	assert.False(t, errors.Is(err, ErrIndexNotFound))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindIndexBuild, KindOf(err))
	assert.Contains(t, err.Error(), "local.Build: index build: disk full")
}

func TestEDoesNotDoubleWrapSameKind(t *testing.T) {
	inner := E(KindEmbeddingService, "gemini.Embed", errors.New("429"))
	outer := E(KindEmbeddingService, "store.Build", inner)
	assert.Same(t, inner, outer)

	other := E(KindIndexBuild, "store.Build", inner)
	assert.NotSame(t, inner, other)
	assert.True(t, errors.Is(other, ErrEmbeddingService))
	assert.Equal(t, KindIndexBuild, KindOf(other))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, "kind(42)", Kind(42).String())
}
