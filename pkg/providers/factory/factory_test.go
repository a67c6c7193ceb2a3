package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/providers"
)

func TestNew(t *testing.T) {
	t.Run("empty name means raw", func(t *testing.T) {
		tr, err := New("", Options{})
		require.NoError(t, err)
		assert.Equal(t, "raw", tr.GetName())
	})

	t.Run("raw passes text through", func(t *testing.T) {
		tr, err := New("raw", Options{})
		require.NoError(t, err)

		result, err := tr.Translate(context.Background(), "Hello world")
		require.NoError(t, err)
		assert.Equal(t, "Hello world", result.Processed)
		assert.Empty(t, result.Replacements)
	})

	t.Run("openai provider configured", func(t *testing.T) {
		tr, err := New("openai", Options{Model: "gpt-4o", APIKey: "sk-test"})
		require.NoError(t, err)
		assert.Equal(t, "openai", tr.GetName())
	})

	t.Run("unknown name rejected", func(t *testing.T) {
		_, err := New("babelfish", Options{})
		require.Error(t, err)

		var unknownErr *providers.ErrUnknownProvider
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "babelfish", unknownErr.Name)
	})
}
