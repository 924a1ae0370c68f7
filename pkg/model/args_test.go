package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONObject(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		out, err := ParseJSONObject(`{"skinType":"oily","confidence":0.8}`)
		require.NoError(t, err)
		assert.Equal(t, "oily", out["skinType"])
		assert.Equal(t, 0.8, out["confidence"])
	})

	t.Run("code fence", func(t *testing.T) {
		out, err := ParseJSONObject("```json\n{\"skinType\":\"dry\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, "dry", out["skinType"])
	})

	t.Run("trailing comma repaired", func(t *testing.T) {
		out, err := ParseJSONObject(`{"to":"a@b.c","subject":"hi",}`)
		require.NoError(t, err)
		assert.Equal(t, "a@b.c", out["to"])
		assert.Equal(t, "hi", out["subject"])
	})

	t.Run("empty", func(t *testing.T) {
		out, err := ParseJSONObject("  ")
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}
