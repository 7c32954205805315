package video

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invertFilter() Filter {
	return FilterFunc{
		Label: "invert",
		Fn: func(f *Frame) (*Frame, error) {
			out := f.Clone()
			for i := range out.Pix {
				out.Pix[i] = 255 - out.Pix[i]
			}
			return out, nil
		},
	}
}

func TestFilterChain_EmptyReturnsCopy(t *testing.T) {
	chain := NewFilterChain()
	f := createTestFrame(t, 8, 8, 3, 70)

	out, err := chain.Apply(f)
	require.NoError(t, err)
	assert.Equal(t, f.Pix, out.Pix)

	out.Pix[0] = 0
	assert.Equal(t, uint8(70), f.Pix[0])
}

func TestFilterChain_AppliesInOrder(t *testing.T) {
	chain := NewFilterChain(invertFilter(), invertFilter())
	f := createTestFrame(t, 8, 8, 3, 70)

	out, err := chain.Apply(f)
	require.NoError(t, err)
	// Double inversion restores the original values.
	assert.Equal(t, f.Pix, out.Pix)
}

func TestFilterChain_InputImmutability(t *testing.T) {
	chain := NewFilterChain(invertFilter())
	f := createTestFrame(t, 8, 8, 3, 70)

	out, err := chain.Apply(f)
	require.NoError(t, err)
	assert.Equal(t, uint8(70), f.Pix[0])
	assert.Equal(t, uint8(185), out.Pix[0])
}

func TestFilterChain_PropagatesFilterError(t *testing.T) {
	failing := FilterFunc{
		Label: "broken",
		Fn: func(f *Frame) (*Frame, error) {
			return nil, errors.New("filter exploded")
		},
	}
	chain := NewFilterChain(invertFilter(), failing)
	f := createTestFrame(t, 4, 4, 1, 1)

	_, err := chain.Apply(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestFilterChain_NilInput(t *testing.T) {
	chain := NewFilterChain(invertFilter())
	_, err := chain.Apply(nil)
	assert.ErrorIs(t, err, ErrNilFrame)
}
