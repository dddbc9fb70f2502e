package supervisor

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// cellSize is the width of one heartbeat cell: a monotonic-seconds
// timestamp, per spec §3's "N × 4 bytes" heartbeat block.
const cellSize = 4

// HeartbeatBlock is a fixed-size array of per-slot heartbeat cells. Cell i
// is written only by worker i and read only by the supervisor; word-sized
// writes are assumed atomic (spec §5).
type HeartbeatBlock struct {
	mem []byte
}

// NewHeartbeatBlock wraps an existing byte slice — typically a view onto
// shared memory — as a heartbeat block of n cells. len(mem) must be at
// least n*cellSize.
func NewHeartbeatBlock(mem []byte, n int) *HeartbeatBlock {
	need := n * cellSize
	if len(mem) < need {
		panic("supervisor: heartbeat memory shorter than n*cellSize")
	}
	return &HeartbeatBlock{mem: mem[:need]}
}

// NewSharedHeartbeatBlock allocates an anonymous shared memory object sized
// for n slots via memfd_create, maps it MAP_SHARED, and returns both the
// block and the backing file descriptor, which the caller wraps in an
// *os.File to hand to forked children via exec.Cmd.ExtraFiles (mmap does
// not survive exec, but
// mapping the same underlying file object independently in the child does).
func NewSharedHeartbeatBlock(n int) (*HeartbeatBlock, int, error) {
	size := n * cellSize
	if size == 0 {
		size = cellSize
	}
	fd, err := unix.MemfdCreate("corehttpd-heartbeat", 0)
	if err != nil {
		return nil, -1, err
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, -1, err
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, -1, err
	}
	return &HeartbeatBlock{mem: mem}, fd, nil
}

// MapSharedHeartbeatBlock mmaps an inherited heartbeat file descriptor —
// the counterpart a worker child calls on the fd it received via
// ExtraFiles/env var.
func MapSharedHeartbeatBlock(fd, n int) (*HeartbeatBlock, error) {
	size := n * cellSize
	if size == 0 {
		size = cellSize
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &HeartbeatBlock{mem: mem}, nil
}

func (b *HeartbeatBlock) cell(slot int) *uint32 {
	off := slot * cellSize
	return (*uint32)(unsafe.Pointer(&b.mem[off]))
}

// Write stores ts into slot's cell.
func (b *HeartbeatBlock) Write(slot int, ts uint32) {
	atomic.StoreUint32(b.cell(slot), ts)
}

// Read loads slot's cell.
func (b *HeartbeatBlock) Read(slot int) uint32 {
	return atomic.LoadUint32(b.cell(slot))
}

// Slots returns the number of cells the block was sized for.
func (b *HeartbeatBlock) Slots() int { return len(b.mem) / cellSize }

// SlotHeartbeat adapts one cell of a HeartbeatBlock to worker.Heartbeat.
type SlotHeartbeat struct {
	Block *HeartbeatBlock
	Slot  int
	Now   func() uint32
}

// Beat writes the current monotonic-seconds timestamp to this cell.
func (h *SlotHeartbeat) Beat() {
	now := h.Now
	if now == nil {
		now = defaultNow
	}
	h.Block.Write(h.Slot, now())
}
