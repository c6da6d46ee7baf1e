package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	p, err := Parse("", "")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PageSize)
	assert.Equal(t, 0, p.Offset)
}

func TestParse_ClampsSize(t *testing.T) {
	p, err := Parse("3", "500")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 200, p.Offset)

	p, err = Parse("0", "0")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 1, p.PageSize)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("abc", "")
	assert.Error(t, err)
	_, err = Parse("1", "x")
	assert.Error(t, err)
}

func TestHasMore(t *testing.T) {
	assert.True(t, HasMore(45, 1, 20))
	assert.True(t, HasMore(45, 2, 20))
	assert.False(t, HasMore(45, 3, 20))
	assert.False(t, HasMore(20, 1, 20))
}
