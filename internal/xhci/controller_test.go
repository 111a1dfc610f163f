package xhci

import "testing"

// fakeMMIO is an in-memory register file, keyed by byte offset, standing
// in for a real BAR so controller logic is testable off real hardware.
type fakeMMIO struct {
	regs map[uintptr]uint64
}

func newFakeMMIO() *fakeMMIO { return &fakeMMIO{regs: map[uintptr]uint64{}} }

func (m *fakeMMIO) Read32(off uintptr) uint32    { return uint32(m.regs[off]) }
func (m *fakeMMIO) Write32(off uintptr, v uint32) { m.regs[off] = uint64(v) }
func (m *fakeMMIO) Read64(off uintptr) uint64     { return m.regs[off] }
func (m *fakeMMIO) Write64(off uintptr, v uint64) { m.regs[off] = v }

// instantResetMMIO simulates hardware that completes a port reset
// synchronously: the read immediately following the PR write already
// reports PRC set, so PortStatus's spin loop never iterates more than
// once (avoiding a goroutine-based race on the fake register file).
type instantResetMMIO struct {
	*fakeMMIO
	resetOffset uintptr
}

func (m instantResetMMIO) Write32(off uintptr, v uint32) {
	m.fakeMMIO.Write32(off, v)
	if off == m.resetOffset && v&portscPR != 0 {
		m.fakeMMIO.Write32(off, v|portscPRC|(5<<10))
	}
}

func TestPortStatusResetsNewlyConnectedPort(t *testing.T) {
	off := uintptr(regPORTSCBase)
	mmio := instantResetMMIO{fakeMMIO: newFakeMMIO(), resetOffset: off}
	c := &Controller{mmio: mmio, op: 0}

	mmio.Write32(off, portscCCS) // connected, not yet enabled

	speed, connected := c.PortStatus(1)
	if !connected {
		t.Fatalf("expected port to report connected")
	}
	if speed != 5 {
		t.Fatalf("speed = %d, want 5", speed)
	}
}

func TestPortStatusIgnoresAlreadyEnabledPort(t *testing.T) {
	mmio := newFakeMMIO()
	c := &Controller{mmio: mmio}
	mmio.Write32(uintptr(regPORTSCBase), portscCCS|portscPED)

	if _, connected := c.PortStatus(1); connected {
		t.Fatalf("already-enabled port should not be re-enumerated")
	}
}

func TestPortStatusIgnoresDisconnectedPort(t *testing.T) {
	mmio := newFakeMMIO()
	c := &Controller{mmio: mmio}
	if _, connected := c.PortStatus(1); connected {
		t.Fatalf("disconnected port (CCS clear) should report not connected")
	}
}

func TestSubmitCommandSingleFlight(t *testing.T) {
	mmio := newFakeMMIO()
	cmdBase := make([]TRB, 4)
	evBase := make([]TRB, 4)
	c := &Controller{
		mmio:        mmio,
		CommandRing: NewRing(cmdBase),
		EventRing:   NewEventRing(evBase),
	}

	// Pre-seed the event ring with the completion event submitCommand's
	// spin will find on its first ProcessEvents call.
	var comp TRB
	comp.SetType(TRBTypeCommandComp)
	comp.SetSlotID(3)
	comp.Status = uint32(CompletionSuccess) << 24
	comp.SetCycle(true)
	evBase[0] = comp

	var trb TRB
	trb.SetType(TRBTypeEnableSlot)
	cc, slotID := c.submitCommand(trb)

	if cc != CompletionSuccess {
		t.Fatalf("completion code = %d, want success", cc)
	}
	if slotID != 3 {
		t.Fatalf("slot id = %d, want 3", slotID)
	}
	// Doorbell 0 must have been rung with target 0.
	if _, rung := mmio.regs[c.db+0]; !rung {
		t.Fatalf("doorbell 0 not rung")
	}
}
