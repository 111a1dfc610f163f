package fbtext

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/fogleman/gg"
)

const (
	cellW = 8
	cellH = 16
	// fontPointSize is chosen so goregular glyphs fit comfortably inside
	// an 8x16 cell at 72 DPI.
	fontPointSize = 11
)

// Console is a framebuffer-backed text console: glyphs are rasterized via
// freetype/gg into an RGBA backbuffer, then flushed into the linear
// framebuffer the bootloader handed off (spec.md §6's framebuffer fields),
// the same backbuffer-then-flush shape as mazboot's gg_circle_qemu.go.
type Console struct {
	fb     Target
	ctx    *gg.Context
	glyphs *glyphCache

	cols, rows int
	col, row   int

	fg, bg color.RGBA
}

// Target is the linear framebuffer this console renders into; callers
// construct one from bootinfo.Info (spec.md §3 "boot-info record"). Base
// is a physically/identity-mapped address, Pitch is bytes per scanline.
type Target struct {
	Base   uintptr
	Width  uint32
	Height uint32
	Pitch  uint32
}

// New builds a console sized to fb's resolution. Returns an error (never
// panics) if the embedded font fails to parse, per spec.md §7's
// recoverable-error discipline for host-testable constructors.
func New(fb Target) (*Console, error) {
	glyphs, err := newGlyphCache(fontPointSize)
	if err != nil {
		return nil, err
	}
	c := &Console{
		fb:     fb,
		ctx:    gg.NewContext(int(fb.Width), int(fb.Height)),
		glyphs: glyphs,
		cols:   int(fb.Width) / cellW,
		rows:   int(fb.Height) / cellH,
		fg:     color.RGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF},
		bg:     color.RGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xFF},
	}
	c.ctx.SetColor(c.bg)
	c.ctx.Clear()
	return c, nil
}

// SetColors changes the foreground/background used by subsequent writes.
func (c *Console) SetColors(fg, bg color.RGBA) { c.fg, c.bg = fg, bg }

// Clear paints the whole backbuffer bg and resets the cursor to the top
// left, backing the clear_screen syscall (spec.md §4.7 id 12).
func (c *Console) Clear() {
	c.ctx.SetColor(c.bg)
	c.ctx.Clear()
	c.col, c.row = 0, 0
}

// putChar rasterizes r into cell (col, row) of the backbuffer.
func (c *Console) putChar(r rune, col, row int) {
	x0, y0 := col*cellW, row*cellH
	img := c.ctx.Image().(*image.RGBA)
	bgRect := image.Rect(x0, y0, x0+cellW, y0+cellH)
	draw.Draw(img, bgRect, image.NewUniform(c.bg), image.Point{}, draw.Src)

	mask := c.glyphs.glyph(r, cellW, cellH)
	draw.DrawMask(img, bgRect, image.NewUniform(c.fg), image.Point{}, mask, image.Point{}, draw.Over)
}

// scroll shifts every row up by one cell and clears the last row,
// discarding the top row's content (no scrollback buffer, per spec.md
// §1's non-goals not naming one).
func (c *Console) scroll() {
	img := c.ctx.Image().(*image.RGBA)
	draw.Draw(img, image.Rect(0, 0, c.cols*cellW, (c.rows-1)*cellH),
		img, image.Pt(0, cellH), draw.Src)
	last := image.Rect(0, (c.rows-1)*cellH, c.cols*cellW, c.rows*cellH)
	draw.Draw(img, last, image.NewUniform(c.bg), image.Point{}, draw.Src)
}

func (c *Console) newline() {
	c.col = 0
	c.row++
	if c.row >= c.rows {
		c.scroll()
		c.row = c.rows - 1
	}
}
