package shell

import (
	"strings"
	"testing"
)

type fakeSyscalls struct {
	out     strings.Builder
	exited  bool
	cleared bool
}

func (f *fakeSyscalls) Print(s string) { f.out.WriteString(s) }
func (f *fakeSyscalls) ReadKey() byte  { return 0 }
func (f *fakeSyscalls) Yield()         {}
func (f *fakeSyscalls) ClearScreen()   { f.cleared = true }
func (f *fakeSyscalls) Exit()          { f.exited = true }

type fakeJIT struct {
	lastSrc string
	result  uint64
	err     error
}

func (j *fakeJIT) Assemble(src string) ([]byte, error) {
	j.lastSrc = src
	return []byte{0x90}, j.err
}
func (j *fakeJIT) Run(code []byte) uint64 { return j.result }

func feed(s *Shell, line string) {
	for i := 0; i < len(line); i++ {
		s.HandleKey(line[i])
	}
}

func TestHandleKeyEchoesPrintableChars(t *testing.T) {
	sys := &fakeSyscalls{}
	s := New(sys, &fakeJIT{})
	s.HandleKey('h')
	s.HandleKey('i')
	if !strings.Contains(sys.out.String(), "hi") {
		t.Fatalf("output %q does not contain echoed input", sys.out.String())
	}
}

func TestBackspaceRemovesLastChar(t *testing.T) {
	sys := &fakeSyscalls{}
	s := New(sys, &fakeJIT{})
	s.HandleKey('a')
	s.HandleKey('b')
	s.HandleKey(keyBackspace)
	if string(s.line) != "a" {
		t.Fatalf("line = %q, want \"a\" after backspace", s.line)
	}
}

func TestEnterExecutesUnknownCommand(t *testing.T) {
	sys := &fakeSyscalls{}
	s := New(sys, &fakeJIT{})
	feed(s, "frobnicate")
	s.HandleKey(keyEnter)
	if !strings.Contains(sys.out.String(), "unknown command: frobnicate") {
		t.Fatalf("output = %q, want an unknown-command message", sys.out.String())
	}
}

func TestHelpBuiltinPrintsCommandList(t *testing.T) {
	sys := &fakeSyscalls{}
	s := New(sys, &fakeJIT{})
	feed(s, "help")
	s.HandleKey(keyEnter)
	if !strings.Contains(sys.out.String(), "commands:") {
		t.Fatalf("help output missing command list: %q", sys.out.String())
	}
}

func TestClearBuiltinCallsClearScreen(t *testing.T) {
	sys := &fakeSyscalls{}
	s := New(sys, &fakeJIT{})
	feed(s, "clear")
	s.HandleKey(keyEnter)
	if !sys.cleared {
		t.Fatalf("expected ClearScreen to be called")
	}
}

func TestHistoryRecallsPreviousCommand(t *testing.T) {
	sys := &fakeSyscalls{}
	s := New(sys, &fakeJIT{})
	feed(s, "first")
	s.HandleKey(keyEnter)
	feed(s, "second")
	s.HandleKey(keyEnter)

	s.HandleKey(KeyUp)
	if string(s.line) != "second" {
		t.Fatalf("line = %q, want most recent history entry \"second\"", s.line)
	}
	s.HandleKey(KeyUp)
	if string(s.line) != "first" {
		t.Fatalf("line = %q, want \"first\" after a second Up", s.line)
	}
}

func TestJITBuiltinAssemblesAndRuns(t *testing.T) {
	sys := &fakeSyscalls{}
	jit := &fakeJIT{result: 42}
	s := New(sys, jit)
	feed(s, "jit mov rax, 42")
	s.HandleKey(keyEnter)

	if jit.lastSrc != "mov rax, 42" {
		t.Fatalf("jit source = %q, want the joined args", jit.lastSrc)
	}
	if !strings.Contains(sys.out.String(), "0x2a") {
		t.Fatalf("output = %q, want hex result 0x2a", sys.out.String())
	}
}

func TestExitBuiltinCallsExit(t *testing.T) {
	sys := &fakeSyscalls{}
	s := New(sys, &fakeJIT{})
	feed(s, "exit")
	s.HandleKey(keyEnter)
	if !sys.exited {
		t.Fatalf("expected Exit to be called")
	}
}
