package main

import (
	"testing"

	"github.com/moontrade/mersenne/dist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindParams(t *testing.T) {
	params, err := kindParams(dist.KindInt, 64, 4)
	require.NoError(t, err)
	assert.Nil(t, params)

	params, err = kindParams(dist.KindGaussian, 64, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint32{64}, params)

	params, err = kindParams(dist.KindChiSquare, 32, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 32}, params)

	_, err = kindParams(dist.KindGaussian, dist.MaxPrecision+1, 4)
	assert.Error(t, err)
	_, err = kindParams(dist.KindChiSquare, 64, 1<<32)
	assert.Error(t, err)
}
