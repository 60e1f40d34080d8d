package media_test

import (
	"bytes"
	"image"
	"image/color"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/photopipeline/internal/testutil"
	"github.com/camden-git/photopipeline/media"
)

func TestDominantColor(t *testing.T) {
	gen := media.NewPlaceholderGenerator(nil)

	tests := []struct {
		name string
		img  image.Image
		want string
	}{
		{"solid red", testutil.Solid(64, 48, color.NRGBA{R: 255, A: 255}), "#ff0000"},
		{"solid teal", testutil.Solid(10, 10, color.NRGBA{R: 0x11, G: 0x80, B: 0x80, A: 255}), "#118080"},
		{"transparent", testutil.Solid(8, 8, color.NRGBA{}), "#000000"},
		{"single pixel", testutil.Solid(1, 1, color.NRGBA{R: 1, G: 2, B: 3, A: 255}), "#010203"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gen.DominantColor(tt.img))
		})
	}

	// half black, half white averages to mid grey
	split := testutil.Solid(32, 32, color.NRGBA{A: 255})
	for y := 0; y < 32; y++ {
		for x := 16; x < 32; x++ {
			split.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	got := gen.DominantColor(split)
	require.Regexp(t, `^#[0-9a-f]{6}$`, got)
	assert.Equal(t, got[1:3], got[3:5])
	assert.Equal(t, got[1:3], got[5:7])
	grey, err := strconv.ParseUint(got[1:3], 16, 8)
	require.NoError(t, err)
	assert.InDelta(t, 128, float64(grey), 16)
}

func savePNG(t *testing.T, store media.Store, assetType media.AssetType, name string, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, media.Encode(&buf, img, media.ExtPNG, 0))
	rel, err := store.Save(assetType, "", name, &buf)
	require.NoError(t, err)
	return rel
}

func TestPlaceholderFromStore(t *testing.T) {
	store := newStore(t)
	gen := media.NewPlaceholderGenerator(store)

	thumb := savePNG(t, store, media.AssetTypeThumbnail, "a.png", testutil.Solid(20, 20, color.NRGBA{R: 255, A: 255}))
	display := savePNG(t, store, media.AssetTypeDisplay, "a.png", testutil.Solid(40, 40, color.NRGBA{B: 255, A: 255}))

	// thumbnail wins
	hex, err := gen.FromStore(&thumb, &display)
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", hex)

	// missing thumbnail falls back to display
	missing := "thumbnails/gone.png"
	hex, err = gen.FromStore(&missing, &display)
	require.NoError(t, err)
	assert.Equal(t, "#0000ff", hex)

	_, err = gen.FromStore(&missing, nil)
	assert.ErrorIs(t, err, media.ErrNoPlaceholderSource)

	empty := ""
	_, err = gen.FromStore(&empty, &empty)
	assert.ErrorIs(t, err, media.ErrNoPlaceholderSource)
}
