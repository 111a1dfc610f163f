// Package shell implements the line-editor user-mode shell (spec.md §1,
// §4.11): a thin program built entirely on the syscall ABI of spec.md
// §4.7, never touching hardware directly. Grounded on mazboot's UART
// console read loop (uartGetc/uartDequeue byte-at-a-time polling with
// backspace handling), re-targeted to read_key's pseudo-codes.
package shell

// Pseudo-codes read_key (syscall id 11) returns for the arrow keys,
// mirroring the xhci HID-usage table's 0x80..0x83 mapping.
const (
	KeyRight = 0x80
	KeyLeft  = 0x81
	KeyDown  = 0x82
	KeyUp    = 0x83

	keyEnter     = 0x0A
	keyBackspace = 0x08
)

// Syscalls is the subset of the syscall ABI the shell drives, injected so
// the line editor is testable without a real syscall gateway (spec.md
// §9's dependency-injection discipline).
type Syscalls interface {
	Print(s string)
	ReadKey() byte
	Yield()
	ClearScreen()
	Exit()
}

// JIT is the TinyASM surface the "jit" built-in feeds (internal/jit).
type JIT interface {
	Assemble(src string) ([]byte, error)
	Run(code []byte) uint64
}

// Shell is one line editor instance: an input buffer, command history,
// and a built-in dispatch table.
type Shell struct {
	sys Syscalls
	jit JIT

	line   []byte
	cursor int

	history  []string
	histPos  int
	builtins map[string]func(args []string)
}

// New builds a shell bound to sys and jit.
func New(sys Syscalls, jit JIT) *Shell {
	s := &Shell{sys: sys, jit: jit}
	s.builtins = map[string]func(args []string){
		"help":    s.builtinHelp,
		"history": s.builtinHistory,
		"clear":   s.builtinClear,
		"jit":     s.builtinJIT,
		"exit":    s.builtinExit,
	}
	return s
}

// Run polls read_key forever, yielding when no key is pending, feeding
// each byte to HandleKey. Never returns in practice (matches spec.md
// §4.7 table's "shutdown... 0 (no return in practice)" framing for the
// other terminal syscall).
func (s *Shell) Run() {
	s.prompt()
	for {
		b := s.sys.ReadKey()
		if b == 0 {
			s.sys.Yield()
			continue
		}
		s.HandleKey(b)
	}
}

func (s *Shell) prompt() { s.sys.Print("\r\n> ") }

// HandleKey processes one byte from read_key: line editing, history
// navigation, or command execution on Enter.
func (s *Shell) HandleKey(b byte) {
	switch b {
	case keyEnter:
		s.sys.Print("\r\n")
		s.execute(string(s.line))
		s.line = s.line[:0]
		s.cursor = 0
		s.histPos = len(s.history)
		s.prompt()
	case keyBackspace:
		if s.cursor > 0 {
			s.line = append(s.line[:s.cursor-1], s.line[s.cursor:]...)
			s.cursor--
			s.sys.Print("\b \b")
		}
	case KeyUp:
		s.recall(s.histPos - 1)
	case KeyDown:
		s.recall(s.histPos + 1)
	case KeyLeft, KeyRight:
		// Cursor movement within the line is not echoed to a real
		// terminal position here; the framebuffer console has no
		// notion of mid-line cursor placement, so these are no-ops
		// beyond bounds-tracked future extension.
	default:
		s.line = append(s.line[:s.cursor], append([]byte{b}, s.line[s.cursor:]...)...)
		s.cursor++
		s.sys.Print(string(b))
	}
}

// recall replaces the current line with history entry idx; out-of-range
// requests are ignored and leave the line unchanged.
func (s *Shell) recall(idx int) {
	if idx < 0 || idx >= len(s.history) {
		return
	}
	for range s.line {
		s.sys.Print("\b \b")
	}
	s.histPos = idx
	s.line = []byte(s.history[idx])
	s.cursor = len(s.line)
	s.sys.Print(s.history[idx])
}

func (s *Shell) execute(line string) {
	if line == "" {
		return
	}
	s.history = append(s.history, line)

	fields := splitFields(line)
	cmd, args := fields[0], fields[1:]
	if fn, ok := s.builtins[cmd]; ok {
		fn(args)
		return
	}
	s.sys.Print("unknown command: " + cmd + "\r\n")
}

// splitFields is a tiny allocation-light whitespace tokenizer, avoiding
// strings.Fields's use of unicode tables in a context with no real need
// for them (spec.md ambient-stack logging discipline: boot-critical code
// stays minimal).
func splitFields(s string) []string {
	var out []string
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

func (s *Shell) builtinHelp(args []string) {
	s.sys.Print("commands: help history clear jit <asm> exit\r\n")
}

func (s *Shell) builtinHistory(args []string) {
	for i, h := range s.history {
		s.sys.Print(itoa(i) + ": " + h + "\r\n")
	}
}

func (s *Shell) builtinClear(args []string) { s.sys.ClearScreen() }

func (s *Shell) builtinExit(args []string) { s.sys.Exit() }

func (s *Shell) builtinJIT(args []string) {
	if len(args) == 0 {
		s.sys.Print("usage: jit <tinyasm source>\r\n")
		return
	}
	src := joinArgs(args)
	code, err := s.jit.Assemble(src)
	if err != nil {
		s.sys.Print("jit: " + err.Error() + "\r\n")
		return
	}
	result := s.jit.Run(code)
	s.sys.Print("=> " + uitoaHex(result) + "\r\n")
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func uitoaHex(n uint64) string {
	const digits = "0123456789abcdef"
	if n == 0 {
		return "0x0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%16]
		n /= 16
	}
	return "0x" + string(buf[i:])
}
