// Package adaptererr collects the error kinds spec §7 assigns to the
// transport and supervisor layers, distinct from the pipeline's
// configuration errors (pkg/pipeline) and the parser's integer status
// outcomes (pkg/httpwire).
package adaptererr

import "github.com/cockroachdb/errors"

// SocketUnavailableError reports a failed listen/bind at worker or
// supervisor startup. It is fatal to the process that raised it; a
// supervisor-owned worker is respawned by its parent.
type SocketUnavailableError struct {
	Address string
	Errno   error
	Message string
}

func (e *SocketUnavailableError) Error() string {
	return errors.Newf("adaptererr: socket unavailable at %s: %s", e.Address, e.Message).Error()
}

func (e *SocketUnavailableError) Unwrap() error { return e.Errno }

// SocketUnavailable constructs a SocketUnavailableError.
func SocketUnavailable(address string, errno error, message string) error {
	return &SocketUnavailableError{Address: address, Errno: errno, Message: message}
}

// ForkFailedError reports a supervisor-level failure to spawn a worker
// during the Forking state. It is fatal to the supervisor.
type ForkFailedError struct {
	Slot int
	Err  error
}

func (e *ForkFailedError) Error() string {
	return errors.Newf("adaptererr: fork failed for slot %d: %s", e.Slot, e.Err).Error()
}

func (e *ForkFailedError) Unwrap() error { return e.Err }

// ForkFailed constructs a ForkFailedError.
func ForkFailed(slot int, err error) error {
	return &ForkFailedError{Slot: slot, Err: err}
}

// FrameError reports a malformed message-queue frame (pkg/worker's queue
// variant). When frame parsing after a successful Pull reports it, it is
// recovered locally: the frame is dropped and the worker continues its
// receive loop. When StreamTransport.Pull itself reports it, Run returns it
// wrapped as an ApplicationError and the worker stops.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return errors.Newf("adaptererr: malformed queue frame: %s", e.Reason).Error()
}

// Frame constructs a FrameError.
func Frame(reason string) error {
	return &FrameError{Reason: reason}
}

// ApplicationError wraps a failure that ends a worker's Run loop: a failed
// Accept (HTTP worker) or Pull (queue worker). Run returns it, and the
// worker process logs it and exits so the supervisor can respawn. A panic
// in the pipeline's endpoint or middleware is not wrapped here: the workers
// recover it into a 500 response and keep serving (see invoke in
// pkg/worker).
type ApplicationError struct {
	Err error
}

func (e *ApplicationError) Error() string {
	return errors.Newf("adaptererr: application handler failed: %s", e.Err).Error()
}

func (e *ApplicationError) Unwrap() error { return e.Err }

// Application wraps err as an ApplicationError. Application(nil) returns
// nil.
func Application(err error) error {
	if err == nil {
		return nil
	}
	return &ApplicationError{Err: err}
}
