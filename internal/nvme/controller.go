package nvme

import "strings"

// Controller register offsets (NVMe Base Spec §3.1, spec.md §4.10).
const (
	regCAP  = 0x00 // 64-bit
	regVS   = 0x08
	regCC   = 0x14
	regCSTS = 0x1C
	regAQA  = 0x24
	regASQ  = 0x28 // 64-bit
	regACQ  = 0x30 // 64-bit

	ccEN     = 1 << 0
	ccIOSQES = 6 << 16 // 64-byte submission queue entries
	ccIOCQES = 4 << 20 // 16-byte completion queue entries

	cstsRDY = 1 << 0

	doorbellBase = 0x1000
)

// Allocator carves physically-contiguous queue memory, injected for the
// same testability reason as xhci.Allocator.
type Allocator interface {
	Alloc(size uint32, align uintptr) uintptr
}

const adminQueueSize = 64
const ioQueueSize = 64

// Controller owns one NVMe controller's admin and (single) IO queue pair
// plus the active namespace (spec.md §4.10: "non-goals... a filesystem on
// top of NVMe" means this driver only ever needs one open namespace at a
// time).
type Controller struct {
	mmio  MMIO
	alloc Allocator

	AdminSQ *SubmissionQueue
	AdminCQ *CompletionQueue
	IOSQ    *SubmissionQueue
	IOCQ    *CompletionQueue

	ModelNumber string
	NamespaceID uint32

	nextCID uint16
}

func New(mmio MMIO) *Controller { return &Controller{mmio: mmio, NamespaceID: 1} }

func (c *Controller) ringDoorbell(qid uint16, completion bool, value uint32) {
	off := uintptr(doorbellBase) + uintptr(qid)*8
	if completion {
		off += 4
	}
	c.mmio.Write32(off, value)
}

// Init performs the bring-up sequence of spec.md §4.10: disable, program
// the admin queue, re-enable, Identify Controller, and create one IO
// queue pair with QID 1.
func (c *Controller) Init(alloc Allocator) {
	c.alloc = alloc

	cc := c.mmio.Read32(regCC)
	c.mmio.Write32(regCC, cc&^ccEN)
	for c.mmio.Read32(regCSTS)&cstsRDY != 0 {
	}

	sqAddr := alloc.Alloc(adminQueueSize*64, 4096)
	cqAddr := alloc.Alloc(adminQueueSize*16, 4096)
	c.AdminSQ = NewSubmissionQueue(0, unsafeSQSlice(sqAddr, adminQueueSize))
	c.AdminCQ = NewCompletionQueue(0, unsafeCQSlice(cqAddr, adminQueueSize))

	c.mmio.Write32(regAQA, uint32(adminQueueSize-1)<<16|uint32(adminQueueSize-1))
	c.mmio.Write64(regASQ, uint64(sqAddr))
	c.mmio.Write64(regACQ, uint64(cqAddr))

	c.mmio.Write32(regCC, ccEN|ccIOSQES|ccIOCQES)
	for c.mmio.Read32(regCSTS)&cstsRDY == 0 {
	}

	c.identifyController()
	c.createIOQueues()
}

const opIdentify = 0x06
const cnsController = 1

// identifyController submits an Identify Controller admin command into a
// freshly allocated 4 KiB PRP buffer and parses the model number at
// offset 24, length 40 (spec.md §4.10).
func (c *Controller) identifyController() {
	bufAddr := c.alloc.Alloc(4096, 4096)
	buf := unsafeByteSlice(bufAddr, 4096)

	var cmd SQEntry
	cmd.SetOpcode(opIdentify)
	cmd.SetCommandID(c.allocCID())
	cmd.PRP1 = uint64(bufAddr)
	cmd.CDW10 = cnsController
	c.submitAdmin(cmd)

	c.ModelNumber = strings.TrimRight(string(buf[24:64]), " ")
}

const opCreateIOCQ = 0x05
const opCreateIOSQ = 0x01

// createIOQueues creates one IO completion queue then one IO submission
// queue, both QID 1, size 64 (spec.md §4.10).
func (c *Controller) createIOQueues() {
	cqAddr := c.alloc.Alloc(ioQueueSize*16, 4096)
	c.IOCQ = NewCompletionQueue(1, unsafeCQSlice(cqAddr, ioQueueSize))

	var createCQ SQEntry
	createCQ.SetOpcode(opCreateIOCQ)
	createCQ.SetCommandID(c.allocCID())
	createCQ.PRP1 = uint64(cqAddr)
	createCQ.CDW10 = uint32(ioQueueSize-1)<<16 | 1 // QID=1
	createCQ.CDW11 = 1                             // physically contiguous, interrupts disabled
	c.submitAdmin(createCQ)

	sqAddr := c.alloc.Alloc(ioQueueSize*64, 4096)
	c.IOSQ = NewSubmissionQueue(1, unsafeSQSlice(sqAddr, ioQueueSize))

	var createSQ SQEntry
	createSQ.SetOpcode(opCreateIOSQ)
	createSQ.SetCommandID(c.allocCID())
	createSQ.PRP1 = uint64(sqAddr)
	createSQ.CDW10 = uint32(ioQueueSize-1)<<16 | 1 // QID=1
	createSQ.CDW11 = uint32(1)<<16 | 1              // associated CQID=1, physically contiguous
	c.submitAdmin(createSQ)
}

func (c *Controller) allocCID() uint16 {
	id := c.nextCID
	c.nextCID++
	return id
}

// submitAdmin enqueues cmd on the admin submission queue, rings its
// doorbell, and spins until a matching completion is posted.
func (c *Controller) submitAdmin(cmd SQEntry) CQEntry {
	c.AdminSQ.Submit(cmd)
	c.ringDoorbell(0, false, c.AdminSQ.Tail)
	for {
		if e, ok := c.AdminCQ.Pop(); ok {
			c.ringDoorbell(0, true, c.AdminCQ.Head)
			return e
		}
	}
}

const (
	opWrite = 0x01
	opRead  = 0x02
)

// Read issues an NVMe Read command for count blocks starting at lba into
// buf, via PRP1 = buf's address (spec.md §4.10).
func (c *Controller) Read(nsid uint32, lba uint64, buf []byte, count uint16) bool {
	return c.rw(opRead, nsid, lba, buf, count)
}

// Write issues an NVMe Write command (spec.md §4.10).
func (c *Controller) Write(nsid uint32, lba uint64, buf []byte, count uint16) bool {
	return c.rw(opWrite, nsid, lba, buf, count)
}

func (c *Controller) rw(opcode uint8, nsid uint32, lba uint64, buf []byte, count uint16) bool {
	var cmd SQEntry
	cmd.SetOpcode(opcode)
	cmd.SetCommandID(c.allocCID())
	cmd.NSID = nsid
	cmd.PRP1 = uint64(byteAddrOf(&buf[0]))
	cmd.CDW10 = uint32(lba)
	cmd.CDW11 = uint32(lba >> 32)
	cmd.CDW12 = uint32(count-1) & 0xFFFF

	c.IOSQ.Submit(cmd)
	c.ringDoorbell(c.IOSQ.ID, false, c.IOSQ.Tail)
	for {
		if e, ok := c.IOCQ.Pop(); ok {
			c.ringDoorbell(c.IOCQ.ID, true, c.IOCQ.Head)
			return e.StatusCode() == 0
		}
	}
}
