package channel

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breeze-rmm/vdd/internal/protocol"
)

// fakeKernel stands in for the driver. reply decides how each submitted
// request behaves.
type fakeKernel struct {
	mu       sync.Mutex
	live     int // wait objects not yet released
	frames   []protocol.Frame
	closed   bool
	canceled bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	reply    func(code uint32, in protocol.Frame, out []byte) fakeReply
}

type fakeReply struct {
	submitErr error
	hang      bool
	// stuck keeps a hung request pending even after cancellation.
	stuck     bool
	waitErr   error
	resultErr error
	written   uint32
	delay     time.Duration
}

type fakeRequest struct {
	k        *fakeKernel
	r        fakeReply
	released bool
}

func (k *fakeKernel) submit(code uint32, in *protocol.Frame, out []byte) (request, error) {
	k.mu.Lock()
	k.frames = append(k.frames, *in)
	k.mu.Unlock()

	r := fakeReply{}
	if k.reply != nil {
		r = k.reply(code, *in, out)
	}
	if r.submitErr != nil {
		return nil, r.submitErr
	}

	k.mu.Lock()
	k.live++
	k.mu.Unlock()
	n := k.inFlight.Add(1)
	for {
		m := k.maxSeen.Load()
		if n <= m || k.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	return &fakeRequest{k: k, r: r}, nil
}

func (k *fakeKernel) cancel() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("cancel after close")
	}
	k.canceled = true
	return nil
}

func (k *fakeKernel) close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return nil
}

func (k *fakeKernel) liveEvents() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.live
}

func (r *fakeRequest) wait(timeout time.Duration) (bool, error) {
	if r.r.delay > 0 {
		time.Sleep(r.r.delay)
	}
	if r.r.waitErr != nil {
		return false, r.r.waitErr
	}
	return !r.r.hang, nil
}

func (r *fakeRequest) result() (uint32, error) {
	return r.r.written, r.r.resultErr
}

func (r *fakeRequest) release() error {
	if r.released {
		return errors.New("double release")
	}
	r.released = true
	r.k.inFlight.Add(-1)
	r.k.mu.Lock()
	r.k.live--
	r.k.mu.Unlock()
	return nil
}

func (r *fakeRequest) pending() bool {
	if !r.r.hang {
		return false
	}
	r.k.mu.Lock()
	defer r.k.mu.Unlock()
	return r.r.stuck || !r.k.canceled
}

func writeOutput(out []byte, v uint32) uint32 {
	binary.LittleEndian.PutUint32(out, v)
	return protocol.OutputSize
}

func TestSendTransmitsFullFrame(t *testing.T) {
	k := &fakeKernel{}
	d := newDevice(k, `\\?\test`)

	_, err := d.Send(protocol.RemoveDisplayCommand(protocol.DefaultTimeouts(), 3))
	require.NoError(t, err)

	require.Len(t, k.frames, 1)
	f := k.frames[0]
	assert.Equal(t, byte(0), f[0])
	assert.Equal(t, byte(3), f[1])
	for i := 2; i < protocol.FrameSize; i++ {
		assert.Zero(t, f[i], "byte %d", i)
	}
}

func TestSendDecodesOutput(t *testing.T) {
	k := &fakeKernel{reply: func(code uint32, _ protocol.Frame, out []byte) fakeReply {
		require.Equal(t, uint32(protocol.CodeVersion), code)
		require.Len(t, out, protocol.OutputSize)
		return fakeReply{written: writeOutput(out, 0x2D)}
	}}
	d := newDevice(k, "")

	res, err := d.Send(protocol.VersionCommand(protocol.DefaultTimeouts()))
	require.NoError(t, err)
	assert.True(t, res.HasOutput)
	assert.Equal(t, uint32(0x2D), res.Output)
	assert.Zero(t, k.liveEvents())
}

func TestSendWithoutOutputPassesNoBuffer(t *testing.T) {
	k := &fakeKernel{reply: func(_ uint32, _ protocol.Frame, out []byte) fakeReply {
		assert.Empty(t, out)
		return fakeReply{}
	}}
	d := newDevice(k, "")

	res, err := d.Send(protocol.UpdateCommand(protocol.DefaultTimeouts()))
	require.NoError(t, err)
	assert.False(t, res.HasOutput)
}

func TestSendTimeoutReleasesWaitObject(t *testing.T) {
	k := &fakeKernel{reply: func(uint32, protocol.Frame, []byte) fakeReply {
		return fakeReply{hang: true}
	}}
	d := newDevice(k, "")

	for i := 0; i < 50; i++ {
		_, err := d.Send(protocol.AddDisplayCommand(protocol.DefaultTimeouts()))
		require.ErrorIs(t, err, ErrTimeout)
		assert.Zero(t, k.liveEvents(), "iteration %d leaked a wait object", i)
	}
	assert.Equal(t, 50, d.Abandoned())

	require.NoError(t, d.Close())
	assert.True(t, k.canceled, "pending requests are cancelled before the handle closes")
	assert.Zero(t, d.Abandoned())
}

func TestCloseWithoutAbandonedSkipsCancel(t *testing.T) {
	k := &fakeKernel{}
	d := newDevice(k, "")

	_, err := d.Send(protocol.UpdateCommand(protocol.DefaultTimeouts()))
	require.NoError(t, err)
	require.NoError(t, d.Close())
	assert.False(t, k.canceled)
}

func TestCloseStrandsRequestsTheDriverNeverFinishes(t *testing.T) {
	old := cancelGrace
	cancelGrace = 5 * time.Millisecond
	t.Cleanup(func() { cancelGrace = old })

	stranded.mu.Lock()
	before := len(stranded.reqs)
	stranded.mu.Unlock()

	k := &fakeKernel{reply: func(uint32, protocol.Frame, []byte) fakeReply {
		return fakeReply{hang: true, stuck: true}
	}}
	d := newDevice(k, "")
	for i := 0; i < 3; i++ {
		_, err := d.Send(protocol.AddDisplayCommand(protocol.DefaultTimeouts()))
		require.ErrorIs(t, err, ErrTimeout)
	}

	start := time.Now()
	require.NoError(t, d.Close())
	assert.Less(t, time.Since(start), time.Second, "close is bounded")
	assert.True(t, k.closed)
	assert.Zero(t, d.Abandoned())

	stranded.mu.Lock()
	defer stranded.mu.Unlock()
	assert.Len(t, stranded.reqs, before+3, "buffers stay reachable")
}

func TestWaitMillisRoundsUp(t *testing.T) {
	assert.Equal(t, uint32(0), waitMillis(0))
	assert.Equal(t, uint32(1), waitMillis(time.Nanosecond))
	assert.Equal(t, uint32(1), waitMillis(999*time.Microsecond))
	assert.Equal(t, uint32(1), waitMillis(time.Millisecond))
	assert.Equal(t, uint32(2), waitMillis(1500*time.Microsecond))
	assert.Equal(t, uint32(100), waitMillis(100*time.Millisecond))
	assert.Equal(t, uint32(0xFFFFFFFE), waitMillis(math.MaxInt64))
}

func TestSendWaitFailureIsTimeout(t *testing.T) {
	k := &fakeKernel{reply: func(uint32, protocol.Frame, []byte) fakeReply {
		return fakeReply{waitErr: errors.New("wait failed")}
	}}
	d := newDevice(k, "")

	_, err := d.Send(protocol.UpdateCommand(protocol.DefaultTimeouts()))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, k.liveEvents())
}

func TestSendDriverRejection(t *testing.T) {
	calls := 0
	k := &fakeKernel{reply: func(code uint32, _ protocol.Frame, out []byte) fakeReply {
		calls++
		if calls == 1 {
			return fakeReply{resultErr: errors.New("ERROR_INVALID_PARAMETER")}
		}
		return fakeReply{written: writeOutput(out, 7)}
	}}
	d := newDevice(k, "")

	_, err := d.Send(protocol.RemoveDisplayCommand(protocol.DefaultTimeouts(), 12))
	require.ErrorIs(t, err, ErrDriverRejected)
	assert.Zero(t, k.liveEvents())

	res, err := d.Send(protocol.AddDisplayCommand(protocol.DefaultTimeouts()))
	require.NoError(t, err, "channel must stay usable after a rejection")
	assert.Equal(t, uint32(7), res.Output)
}

func TestSendSubmitFailure(t *testing.T) {
	k := &fakeKernel{reply: func(uint32, protocol.Frame, []byte) fakeReply {
		return fakeReply{submitErr: errors.New("ERROR_INVALID_FUNCTION")}
	}}
	d := newDevice(k, "")

	_, err := d.Send(protocol.UpdateCommand(protocol.DefaultTimeouts()))
	assert.ErrorIs(t, err, ErrDriverRejected)
	assert.Zero(t, k.liveEvents())
}

func TestSendShortOutputIsRejected(t *testing.T) {
	k := &fakeKernel{reply: func(uint32, protocol.Frame, []byte) fakeReply {
		return fakeReply{written: 2}
	}}
	d := newDevice(k, "")

	_, err := d.Send(protocol.AddDisplayCommand(protocol.DefaultTimeouts()))
	assert.ErrorIs(t, err, ErrDriverRejected)
}

func TestSendRejectsReservedCode(t *testing.T) {
	k := &fakeKernel{}
	d := newDevice(k, "")

	_, err := d.Send(protocol.Command{Code: protocol.CodeReserved, Timeout: time.Second})
	assert.ErrorIs(t, err, protocol.ErrUnsupported)
	assert.Empty(t, k.frames, "reserved code must never reach the driver")
}

func TestSendRejectsOutOfRangeSlot(t *testing.T) {
	k := &fakeKernel{}
	d := newDevice(k, "")

	_, err := d.Send(protocol.RemoveDisplayCommand(protocol.DefaultTimeouts(), 256))
	assert.ErrorIs(t, err, protocol.ErrInvalidSlot)
	assert.Empty(t, k.frames)
}

func TestClosedDevice(t *testing.T) {
	k := &fakeKernel{}
	d := newDevice(k, "")

	require.NoError(t, d.Close())
	assert.True(t, k.closed)

	_, err := d.Send(protocol.UpdateCommand(protocol.DefaultTimeouts()))
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, d.Close(), ErrNotOpen)
}

func TestSendSerializesCallers(t *testing.T) {
	k := &fakeKernel{reply: func(uint32, protocol.Frame, []byte) fakeReply {
		return fakeReply{delay: 2 * time.Millisecond}
	}}
	d := newDevice(k, "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Send(protocol.UpdateCommand(protocol.DefaultTimeouts()))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), k.maxSeen.Load())
	assert.Len(t, k.frames, 8)
}
