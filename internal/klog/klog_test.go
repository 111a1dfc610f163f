package klog

import (
	"strings"
	"testing"
)

func TestPutsNoopWithoutSink(t *testing.T) {
	Sink = nil
	Puts("hello") // must not panic
}

func TestLineAppendsCRLF(t *testing.T) {
	var got strings.Builder
	SetSink(func(s string) { got.WriteString(s) })
	defer SetSink(nil)

	Line("boot ok")
	if got.String() != "boot ok\r\n" {
		t.Fatalf("got %q, want %q", got.String(), "boot ok\r\n")
	}
}

func TestPutHex64FormatsSixteenDigits(t *testing.T) {
	var got strings.Builder
	SetSink(func(s string) { got.WriteString(s) })
	defer SetSink(nil)

	PutHex64(0xDEADBEEF)
	want := "00000000DEADBEEF"
	if got.String() != want {
		t.Fatalf("got %q, want %q", got.String(), want)
	}
}
