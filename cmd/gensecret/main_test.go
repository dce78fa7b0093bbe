package main

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_generate(t *testing.T) {
	t.Run("hex of requested size", func(t *testing.T) {
		key, err := generate(48)

		require.NoError(t, err)
		b, err := hex.DecodeString(key)
		require.NoError(t, err)
		require.Len(t, b, 48)
	})

	t.Run("keys differ", func(t *testing.T) {
		k1, err := generate(minKeyBytes)
		require.NoError(t, err)
		k2, err := generate(minKeyBytes)
		require.NoError(t, err)

		require.NotEqual(t, k1, k2)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := generate(16)

		require.Error(t, err)
	})
}
