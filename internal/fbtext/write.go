package fbtext

import (
	"image"
	"unsafe"
)

// WriteByte renders a single byte, handling '\n' (newline+cr), '\r'
// (carriage return), and 0x08 (backspace, erasing the previous cell).
func (c *Console) WriteByte(b byte) error {
	switch b {
	case '\n':
		c.newline()
	case '\r':
		c.col = 0
	case 0x08:
		if c.col > 0 {
			c.col--
			c.putChar(' ', c.col, c.row)
		}
	default:
		c.putChar(rune(b), c.col, c.row)
		c.col++
		if c.col >= c.cols {
			c.newline()
		}
	}
	return nil
}

// Write implements io.Writer so Console can back internal/klog directly.
func (c *Console) Write(p []byte) (int, error) {
	for _, b := range p {
		c.WriteByte(b)
	}
	return len(p), nil
}

// Flush copies the RGBA backbuffer into the linear framebuffer as BGRX
// (XRGB8888, little-endian), the exact conversion mazboot's
// flushGGToFramebuffer performs for its Bochs framebuffer.
func (c *Console) Flush() {
	if c.fb.Base == 0 || c.fb.Width == 0 || c.fb.Height == 0 {
		return
	}
	im, ok := c.ctx.Image().(*image.RGBA)
	if !ok {
		return
	}
	pix := im.Pix
	stride := im.Stride

	width := int(c.fb.Width)
	height := int(c.fb.Height)
	pitch := int(c.fb.Pitch)
	if width <= 0 || height <= 0 || pitch <= 0 {
		return
	}

	dst := unsafe.Slice((*byte)(unsafe.Pointer(c.fb.Base)), pitch*height)
	for y := 0; y < height; y++ {
		srcRow := pix[y*stride:]
		dstRow := dst[y*pitch:]
		for x := 0; x < width; x++ {
			si := x * 4
			di := x * 4
			r := srcRow[si+0]
			g := srcRow[si+1]
			b := srcRow[si+2]
			dstRow[di+0] = b
			dstRow[di+1] = g
			dstRow[di+2] = r
			dstRow[di+3] = 0
		}
	}
}
