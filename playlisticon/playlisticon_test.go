package playlisticon_test

import (
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"go.senan.xyz/chorus/playlisticon"
)

func TestSameNameSameIcon(t *testing.T) {
	t.Parallel()
	writer, err := playlisticon.NewWriter(t.TempDir())
	require.NoError(t, err)

	first, err := writer.Write("road trip")
	require.NoError(t, err)
	second, err := writer.Write("road trip")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := writer.Write("gym")
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestIconIsValidPNG(t *testing.T) {
	t.Parallel()
	writer, err := playlisticon.NewWriter(t.TempDir())
	require.NoError(t, err)

	iconPath, err := writer.Write("focus")
	require.NoError(t, err)

	f, err := os.Open(iconPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, 512, img.Bounds().Dx())
	require.Equal(t, 512, img.Bounds().Dy())
}

func TestPatternMirrors(t *testing.T) {
	t.Parallel()
	img := playlisticon.Render("mirror me")
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			mirrored := bounds.Max.X - 1 - x
			require.Equal(t, img.At(x, y), img.At(mirrored, y))
		}
	}
}
