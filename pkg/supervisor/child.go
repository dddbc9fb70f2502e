package supervisor

import (
	"net"
	"os"
	"strconv"
)

// Environment variables a forked worker child reads to recover the
// resources its supervisor prepared during PreFork. Go has no fork(2); a
// worker is instead the same executable re-invoked via exec with these
// variables set and the listener/heartbeat file descriptors inherited
// through exec.Cmd.ExtraFiles.
const (
	EnvWorkerSlot     = "COREHTTPD_WORKER_SLOT"
	EnvListenerFD     = "COREHTTPD_LISTENER_FD"
	EnvHeartbeatFD    = "COREHTTPD_HEARTBEAT_FD"
	EnvHeartbeatSlots = "COREHTTPD_HEARTBEAT_SLOTS"
)

// IsWorkerProcess reports whether the current process was exec'd by a
// supervisor as a worker slot, as opposed to being the top-level
// supervisor invocation.
func IsWorkerProcess() bool {
	_, ok := os.LookupEnv(EnvWorkerSlot)
	return ok
}

// WorkerSlot returns this process's slot index, or -1 if it is not a
// worker process.
func WorkerSlot() int {
	v, ok := os.LookupEnv(EnvWorkerSlot)
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

// InheritedListener reconstructs the pre-forked listening socket from the
// file descriptor named by EnvListenerFD, if present.
func InheritedListener() (net.Listener, bool, error) {
	v, ok := os.LookupEnv(EnvListenerFD)
	if !ok {
		return nil, false, nil
	}
	fd, err := strconv.Atoi(v)
	if err != nil {
		return nil, false, err
	}
	f := os.NewFile(uintptr(fd), "corehttpd-listener")
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, false, err
	}
	return ln, true, nil
}

// InheritedHeartbeat maps this process's inherited heartbeat file
// descriptor and returns the block along with this process's own slot
// index. ok is false if no heartbeat fd was inherited (standalone worker,
// or a supervisor mode that disabled heartbeat monitoring).
func InheritedHeartbeat() (block *HeartbeatBlock, slot int, ok bool, err error) {
	slot = WorkerSlot()
	fdStr, hasFD := os.LookupEnv(EnvHeartbeatFD)
	slotsStr, hasSlots := os.LookupEnv(EnvHeartbeatSlots)
	if !hasFD || !hasSlots {
		return nil, slot, false, nil
	}
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return nil, slot, false, err
	}
	slots, err := strconv.Atoi(slotsStr)
	if err != nil {
		return nil, slot, false, err
	}
	block, err = MapSharedHeartbeatBlock(fd, slots)
	if err != nil {
		return nil, slot, false, err
	}
	return block, slot, true, nil
}
