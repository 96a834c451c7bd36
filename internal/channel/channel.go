// Package channel owns the handle to the virtual display adapter and sends
// control frames to it. Every send is asynchronous at the OS level and bounded
// by an explicit wait, so callers only ever see blocking calls with a ceiling.
package channel

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/breeze-rmm/vdd/internal/logging"
	"github.com/breeze-rmm/vdd/internal/protocol"
)

var log = logging.L("channel")

var (
	ErrDeviceNotFound = errors.New("channel: adapter device not found")
	ErrAccessDenied   = errors.New("channel: access denied")
	ErrTimeout        = errors.New("channel: command timed out")
	ErrDriverRejected = errors.New("channel: driver rejected command")
	ErrNotOpen        = errors.New("channel: device not open")
)

// Result is the outcome of a command that completed successfully.
type Result struct {
	Output    uint32
	HasOutput bool
}

// request is one submitted command whose wait object is still held.
type request interface {
	// wait blocks until the request completes or timeout passes. done is
	// false on timeout.
	wait(timeout time.Duration) (done bool, err error)
	// result returns the completion status and the bytes written to the
	// output buffer. Only valid after wait reported done.
	result() (uint32, error)
	// release frees the wait object. Safe to call on every exit path.
	release() error
	// pending reports whether the kernel may still write to the request's
	// buffers. It does not need the wait object.
	pending() bool
}

// kernel is the OS side of the channel.
type kernel interface {
	submit(code uint32, in *protocol.Frame, out []byte) (request, error)
	// cancel asks the driver to finish every request on the handle.
	cancel() error
	close() error
}

// cancelGrace bounds how long Close waits for cancelled requests to finish.
var cancelGrace = 2 * time.Second

// stranded keeps buffers of requests the driver never finished, even after
// cancellation, reachable for the life of the process.
var stranded struct {
	mu   sync.Mutex
	reqs []abandoned
}

// buffers are handed to the kernel by pointer and must stay reachable until
// the kernel is done with them.
type buffers struct {
	frame protocol.Frame
	out   [protocol.OutputSize]byte
}

type abandoned struct {
	buf *buffers
	req request
}

// Device is an open adapter handle. Sends are serialized: the driver protocol
// carries no request IDs, so only one command may be in flight.
type Device struct {
	mu        sync.Mutex
	k         kernel
	path      string
	abandoned []abandoned
}

// Open locates the adapter by its device interface GUID and opens it for
// overlapped I/O.
func Open(adapterGUID string) (*Device, error) {
	k, path, err := openKernel(adapterGUID)
	if err != nil {
		return nil, err
	}
	log.Info("adapter opened", "path", path)
	return newDevice(k, path), nil
}

func newDevice(k kernel, path string) *Device {
	return &Device{k: k, path: path}
}

// Path is the device interface path the handle was opened on.
func (d *Device) Path() string {
	return d.path
}

// Close releases the handle. Requests that timed out are cancelled first and
// their buffers are only dropped once the kernel is done with them.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.k == nil {
		return ErrNotOpen
	}
	if n := len(d.abandoned); n > 0 {
		log.Warn("cancelling unfinished requests", "count", n)
		if err := d.k.cancel(); err != nil {
			log.Warn("cancel pending requests", logging.Err(err))
		}
		d.drainAbandoned()
	}
	err := d.k.close()
	d.k = nil
	if err != nil {
		return fmt.Errorf("channel: close: %w", err)
	}
	log.Info("adapter closed", "path", d.path)
	return nil
}

// drainAbandoned waits up to cancelGrace for abandoned requests to leave the
// kernel. Requests still pending after that are moved to stranded.
func (d *Device) drainAbandoned() {
	deadline := time.Now().Add(cancelGrace)
	for {
		live := d.abandoned[:0]
		for _, a := range d.abandoned {
			if a.req.pending() {
				live = append(live, a)
			}
		}
		d.abandoned = live
		if len(live) == 0 {
			return
		}
		if time.Now().After(deadline) {
			log.Error("driver did not finish cancelled requests", "count", len(live))
			stranded.mu.Lock()
			stranded.reqs = append(stranded.reqs, live...)
			stranded.mu.Unlock()
			d.abandoned = nil
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Abandoned reports how many timed-out requests still pin buffers.
func (d *Device) Abandoned() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.abandoned)
}

// Send submits cmd and waits for it up to cmd.Timeout. A timeout does not
// cancel the request in the driver; the handle stays usable but the request
// is left to the kernel.
func (d *Device) Send(cmd protocol.Command) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.k == nil {
		return Result{}, ErrNotOpen
	}

	l := logging.WithCommand(log, uint32(cmd.Code), cmd.Code.String())
	start := time.Now()
	res, err := d.send(cmd)
	attrs := []any{slog.Int64(logging.KeyDurationMs, time.Since(start).Milliseconds())}
	if err != nil {
		l.Debug("command failed", append(attrs, logging.Err(err))...)
		return res, err
	}
	if res.HasOutput {
		attrs = append(attrs, "output", res.Output)
	}
	l.Debug("command completed", attrs...)
	return res, nil
}

func (d *Device) send(cmd protocol.Command) (Result, error) {
	buf := &buffers{frame: cmd.Frame()}
	var out []byte
	if cmd.ExpectsOutput {
		out = buf.out[:]
	}

	req, err := d.k.submit(uint32(cmd.Code), &buf.frame, out)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrDriverRejected, cmd.Code, err)
	}
	defer func() {
		if rerr := req.release(); rerr != nil {
			log.Warn("release wait object", logging.KeyCodeName, cmd.Code.String(), logging.Err(rerr))
		}
	}()

	done, err := req.wait(cmd.Timeout)
	if err != nil || !done {
		d.abandoned = append(d.abandoned, abandoned{buf: buf, req: req})
		if err != nil {
			return Result{}, fmt.Errorf("%w: %s: wait: %v", ErrTimeout, cmd.Code, err)
		}
		return Result{}, fmt.Errorf("%w: %s after %s", ErrTimeout, cmd.Code, cmd.Timeout)
	}

	n, err := req.result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrDriverRejected, cmd.Code, err)
	}
	if !cmd.ExpectsOutput {
		return Result{}, nil
	}

	if int(n) > len(out) {
		n = uint32(len(out))
	}
	v, err := protocol.DecodeOutput(out[:n])
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrDriverRejected, cmd.Code, err)
	}
	return Result{Output: v, HasOutput: true}, nil
}

// waitMillis converts a timeout for the OS wait. It rounds up, so a timeout
// under a millisecond still waits, and stays below INFINITE.
func waitMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	if ms >= math.MaxUint32 {
		return math.MaxUint32 - 1
	}
	return uint32(ms)
}
