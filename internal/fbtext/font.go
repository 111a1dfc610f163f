package fbtext

import (
	"image"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

// glyphCache rasterizes goregular (embedded as TTF bytes by x/image, so no
// filesystem is ever touched) once per (rune, size) pair and keeps the
// result, mirroring mazboot's RenderChar8x8 bitmap-cache idiom but backed
// by a real scalable font instead of a hand-drawn bitmap table.
type glyphCache struct {
	mu    sync.Mutex
	font  *truetype.Font
	size  float64
	cache map[rune]*image.Alpha
}

func newGlyphCache(pointSize float64) (*glyphCache, error) {
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, err
	}
	return &glyphCache{font: f, size: pointSize, cache: map[rune]*image.Alpha{}}, nil
}

// glyph returns the rasterized alpha mask for r, rasterizing on first use.
func (g *glyphCache) glyph(r rune, cellW, cellH int) *image.Alpha {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.cache[r]; ok {
		return m
	}

	ctx := freetype.NewContext()
	ctx.SetFont(g.font)
	ctx.SetFontSize(g.size)
	ctx.SetDPI(72)
	ctx.SetClip(image.Rect(0, 0, cellW, cellH))

	dst := image.NewAlpha(image.Rect(0, 0, cellW, cellH))
	ctx.SetDst(dst)
	ctx.SetSrc(image.White)

	pt := freetype.Pt(0, cellH-cellH/4)
	ctx.DrawString(string(r), pt)

	g.cache[r] = dst
	return dst
}
