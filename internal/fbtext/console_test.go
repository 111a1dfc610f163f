package fbtext

import (
	"image"
	"testing"
	"unsafe"
)

func newTestConsole(t *testing.T, cols, rows int) (*Console, []byte) {
	t.Helper()
	width := uint32(cols * cellW)
	height := uint32(rows * cellH)
	buf := make([]byte, int(width)*int(height)*4)
	fb := Target{
		Base:   uintptr(unsafe.Pointer(&buf[0])),
		Width:  width,
		Height: height,
		Pitch:  width * 4,
	}
	c, err := New(fb)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, buf
}

func TestWriteAdvancesCursorAndWraps(t *testing.T) {
	c, _ := newTestConsole(t, 4, 3)
	c.Write([]byte("abcd"))
	if c.col != 0 || c.row != 1 {
		t.Fatalf("after filling a row, col=%d row=%d, want col=0 row=1 (wrapped)", c.col, c.row)
	}
}

func TestNewlineResetsColumn(t *testing.T) {
	c, _ := newTestConsole(t, 10, 3)
	c.Write([]byte("hi\n"))
	if c.col != 0 || c.row != 1 {
		t.Fatalf("col=%d row=%d, want col=0 row=1", c.col, c.row)
	}
}

func TestScrollOnOverflow(t *testing.T) {
	c, _ := newTestConsole(t, 10, 2)
	c.Write([]byte("first\nsecond\nthird"))
	if c.row != 1 {
		t.Fatalf("row = %d, want clamped to last row (1) after scroll", c.row)
	}
}

func TestBackspaceErasesPreviousCell(t *testing.T) {
	c, _ := newTestConsole(t, 10, 2)
	c.Write([]byte("ab"))
	c.WriteByte(0x08)
	if c.col != 1 {
		t.Fatalf("col = %d, want 1 after backspace", c.col)
	}
}

func TestClearResetsCursorAndRepaintsBackground(t *testing.T) {
	c, _ := newTestConsole(t, 4, 3)
	c.Write([]byte("ab\ncd"))
	c.Clear()
	if c.col != 0 || c.row != 0 {
		t.Fatalf("col=%d row=%d after Clear, want 0,0", c.col, c.row)
	}
	img := c.ctx.Image().(*image.RGBA)
	r, g, b, a := c.bg.R, c.bg.G, c.bg.B, c.bg.A
	if img.Pix[0] != r || img.Pix[1] != g || img.Pix[2] != b || img.Pix[3] != a {
		t.Fatalf("pixel 0 = %v, want bg color %v", img.Pix[0:4], []byte{r, g, b, a})
	}
}

func TestFlushCopiesBackbufferAsBGRX(t *testing.T) {
	c, buf := newTestConsole(t, 4, 2)
	c.ctx.Image().(*image.RGBA).Pix[0] = 0x11 // R
	c.ctx.Image().(*image.RGBA).Pix[1] = 0x22 // G
	c.ctx.Image().(*image.RGBA).Pix[2] = 0x33 // B
	c.ctx.Image().(*image.RGBA).Pix[3] = 0xFF // A

	c.Flush()

	if buf[0] != 0x33 || buf[1] != 0x22 || buf[2] != 0x11 {
		t.Fatalf("pixel 0 = %02x %02x %02x, want BGR 33 22 11", buf[0], buf[1], buf[2])
	}
}
