package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{}, ParseTags(""))
	assert.Equal(t, []string{}, ParseTags(" , ,"))
	assert.Equal(t, []string{"aurora", "night sky", "long exposure"}, ParseTags("aurora, night sky ,long exposure,"))
}

func TestCategory(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid(), c)
		assert.NotEqual(t, string(c), c.Label())
	}
	assert.Equal(t, "Digital Art", CategoryDigital.Label())

	c, err := ParseCategory(" best-abstract ")
	require.NoError(t, err)
	assert.Equal(t, CategoryAbstract, c)

	_, err = ParseCategory("best-sculpture")
	assert.ErrorIs(t, err, ErrInvalidPiece)
	assert.Equal(t, "best-sculpture", Category("best-sculpture").Label())
}

func TestHandle_JSON(t *testing.T) {
	var h Handle
	h[31] = 0x2a
	data, err := json.Marshal(struct{ H Handle }{h})
	require.NoError(t, err)
	assert.JSONEq(t, `{"H":"0x000000000000000000000000000000000000000000000000000000000000002a"}`, string(data))

	var out struct{ H Handle }
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, h, out.H)

	_, err = ParseHandle("0x1234")
	assert.Error(t, err)
	assert.True(t, Handle{}.IsZero())
}
