package errors

import (
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	t.Parallel()

	ee := Newf("model load failed: %s", "leaf.tflite").Build()

	assert.Equal(t, "model load failed: leaf.tflite", ee.Error())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.WithinDuration(t, time.Now(), ee.GetTimestamp(), time.Second)
}

func TestBuilderFull(t *testing.T) {
	t.Parallel()

	base := NewStd("connection refused")
	ee := New(base).
		Component("backend").
		Category(CategoryNetwork).
		NetworkContext("https://api.example.com/photo/upload", 45*time.Second).
		Context("attempt", 2).
		Build()

	assert.Equal(t, "backend", ee.GetComponent())
	assert.Equal(t, "network", ee.GetCategory())
	require.ErrorIs(t, ee, base)

	ctx := ee.GetContext()
	assert.Equal(t, 2, ctx["attempt"])
	assert.Equal(t, float64(45), ctx["timeout_seconds"])

	// The copy must not alias internal state.
	ctx["attempt"] = 99
	assert.Equal(t, 2, ee.GetContext()["attempt"])
}

func TestWrappedChain(t *testing.T) {
	t.Parallel()

	ee := New(fs.ErrNotExist).Category(CategoryFileIO).Build()
	wrapped := fmt.Errorf("reading capture: %w", ee)

	assert.True(t, Is(wrapped, fs.ErrNotExist))

	var out *EnhancedError
	require.True(t, As(wrapped, &out))
	assert.Equal(t, CategoryFileIO, out.Category)
}

func TestHasCategory(t *testing.T) {
	t.Parallel()

	ee := Newf("inference tensor mismatch").Category(CategoryModelInference).Build()
	wrapped := fmt.Errorf("frame 17: %w", ee)

	assert.True(t, HasCategory(wrapped, CategoryModelInference))
	assert.False(t, HasCategory(wrapped, CategoryNetwork))
	assert.False(t, HasCategory(nil, CategoryNetwork))
}

func TestIsMatchesCategory(t *testing.T) {
	t.Parallel()

	a := Newf("a").Category(CategoryTimeout).Build()
	b := Newf("b").Category(CategoryTimeout).Build()
	c := Newf("c").Category(CategoryRetry).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}
