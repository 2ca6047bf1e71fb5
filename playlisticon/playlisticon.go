// Package playlisticon renders identicon style artwork for playlists. The
// pattern is derived from the playlist name alone, so the same name always
// gets the same icon.
package playlisticon

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

const (
	// grid is the width and height of the block pattern. Columns mirror
	// around the middle one, so only three columns are random.
	grid     = 5
	iconSize = 512
)

type Writer struct {
	dir string
}

func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create icon dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Write renders the icon for name and returns its path. Existing icons are
// reused, which is safe since the pattern is a pure function of the name.
func (w *Writer) Write(name string) (string, error) {
	iconPath := filepath.Join(w.dir, fmt.Sprintf("%08x.png", seed(name)))
	if _, err := os.Stat(iconPath); err == nil {
		return iconPath, nil
	}
	icon := resize.Resize(iconSize, iconSize, Render(name), resize.NearestNeighbor)
	if err := imaging.Save(icon, iconPath); err != nil {
		return "", fmt.Errorf("save icon: %w", err)
	}
	return iconPath, nil
}

// Render draws the raw grid sized pattern for name.
func Render(name string) image.Image {
	bits := seed(name)
	foreground := paletteColor(bits)
	background := color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}

	img := image.NewNRGBA(image.Rect(0, 0, grid, grid))
	for y := 0; y < grid; y++ {
		for x := 0; x < grid; x++ {
			// mirror the right side onto the left
			column := x
			if column > grid/2 {
				column = grid - 1 - x
			}
			cell := uint(y*(grid/2+1) + column)
			if bits>>(cell%32)&1 == 1 {
				img.SetNRGBA(x, y, foreground)
			} else {
				img.SetNRGBA(x, y, background)
			}
		}
	}
	return img
}

func seed(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

func paletteColor(bits uint32) color.NRGBA {
	palette := []color.NRGBA{
		{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
		{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
		{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
		{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
		{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
		{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
		{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
		{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
	}
	return palette[bits%uint32(len(palette))]
}
