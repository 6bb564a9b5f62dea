package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

func TestDecodeText(t *testing.T) {
	t.Run("utf8", func(t *testing.T) {
		text, err := DecodeText([]byte("ATOM café"))
		require.NoError(t, err)
		assert.Equal(t, "ATOM café", text)
	})

	t.Run("strips bom", func(t *testing.T) {
		text, err := DecodeText([]byte("\xef\xbb\xbfATOM"))
		require.NoError(t, err)
		assert.Equal(t, "ATOM", text)
	})

	t.Run("latin1", func(t *testing.T) {
		text, err := DecodeText([]byte("\xc5ngstr\xf6m"))
		require.NoError(t, err)
		assert.Equal(t, "Ångström", text)
	})

	t.Run("binary", func(t *testing.T) {
		_, err := DecodeText([]byte{0x89, 'P', 'N', 'G', 0})
		assert.ErrorIs(t, err, simplemolecule.ErrDecode)
	})
}
