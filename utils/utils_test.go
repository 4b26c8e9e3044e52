package utils

import (
	"errors"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestHashFloats(t *testing.T) {
	a := HashFloats([]float64{1, 2, 3})
	require.Equal(t, a, HashFloats([]float64{1, 2, 3}))
	require.NotEqual(t, a, HashFloats([]float64{1, 2, 3.0000001}))
	require.NotEqual(t, a, HashFloats([]float64{3, 2, 1}))
	require.Equal(t, HashBytes(nil), HashFloats(nil))
}

func TestHashString(t *testing.T) {
	require.Equal(t, HashBytes([]byte("model"), []byte("-a")), HashString("model-a"))
	require.Equal(t, "ff", FormatHash(255))
}

func TestRecoverWithError(t *testing.T) {
	run := func(f func()) (err error) {
		defer RecoverWithError(&err)
		f()
		return nil
	}
	require.NoError(t, run(func() {}))
	err := run(func() { panic(errors.New("boom")) })
	require.EqualError(t, err, "got panic: boom")
}
