package app

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
)

const (
	waitFor = time.Second
	pollAt  = 5 * time.Millisecond
)

type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	inbound chan []byte
	failure chan error
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 8),
		failure: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Send(frame []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeConn) Receive() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case err := <-c.failure:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	conn  *fakeConn
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (port.StreamConn, error) {
	d.calls.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type fakeDevice struct {
	closed atomic.Bool
}

func (d *fakeDevice) Frame() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeCamera struct {
	device *fakeDevice
	err    error
	opens  atomic.Int32
}

func (c *fakeCamera) Open(context.Context) (port.CaptureDevice, error) {
	c.opens.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.device, nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(image.Image) ([]byte, error) {
	return []byte{0xFF, 0xD8, 0xFF}, nil
}

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

// tick доставляет тик, если цикл захвата его читает.
func (t *manualTicker) tick() bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

type streamFixture struct {
	svc     *StreamService
	board   *DetectionBoard
	dialer  *fakeDialer
	camera  *fakeCamera
	conn    *fakeConn
	device  *fakeDevice
	tickers chan *manualTicker
}

func newStreamFixture() *streamFixture {
	f := &streamFixture{
		board:   NewDetectionBoard(),
		conn:    newFakeConn(),
		device:  &fakeDevice{},
		tickers: make(chan *manualTicker, 4),
	}
	f.dialer = &fakeDialer{conn: f.conn}
	f.camera = &fakeCamera{device: f.device}
	f.svc = NewStreamService(f.dialer, f.camera, fakeEncoder{}, f.board, StreamConfig{
		Endpoint: "ws://detector.test/ws/detect",
		NewTicker: func(time.Duration) port.Ticker {
			t := &manualTicker{ch: make(chan time.Time)}
			f.tickers <- t
			return t
		},
	})
	return f
}

func (f *streamFixture) startOpen(t *testing.T) *manualTicker {
	t.Helper()
	require.NoError(t, f.svc.Start(context.Background(), ""))
	require.Eventually(t, f.svc.CameraActive, waitFor, pollAt)
	require.Equal(t, entity.StreamOpen, f.svc.State())

	select {
	case ticker := <-f.tickers:
		return ticker
	case <-time.After(waitFor):
		t.Fatal("capture loop did not start")
		return nil
	}
}

func (f *streamFixture) stateIs(want entity.StreamState) func() bool {
	return func() bool { return f.svc.State() == want }
}

func TestStreamService_SendsFrameOnEachTickWhileOpen(t *testing.T) {
	f := newStreamFixture()
	ticker := f.startOpen(t)

	for i := 0; i < 3; i++ {
		require.True(t, ticker.tick())
	}
	require.Eventually(t, func() bool { return f.svc.Snapshot().FramesSent == 3 }, waitFor, pollAt)
	require.Equal(t, 3, f.conn.sentCount())

	f.svc.Stop()

	require.Equal(t, entity.StreamClosed, f.svc.State())
	require.True(t, ticker.stopped.Load())
	require.False(t, ticker.tick(), "ticks after stop must not be consumed")
	require.True(t, f.device.closed.Load())
	require.True(t, f.conn.isClosed())
	require.False(t, f.svc.CameraActive())
	require.Equal(t, 3, f.conn.sentCount())
}

func TestStreamService_SendDropsWhenNotOpen(t *testing.T) {
	f := newStreamFixture()
	require.False(t, f.svc.Send([]byte("frame")))

	f.dialer.gate = make(chan struct{})
	require.NoError(t, f.svc.Start(context.Background(), ""))
	require.Equal(t, entity.StreamConnecting, f.svc.State())
	require.False(t, f.svc.Send([]byte("frame")))
	require.Zero(t, f.conn.sentCount())

	close(f.dialer.gate)
	require.Eventually(t, f.stateIs(entity.StreamOpen), waitFor, pollAt)
	require.True(t, f.svc.Send([]byte("frame")))
	require.Equal(t, 1, f.conn.sentCount())

	f.svc.Stop()
	require.False(t, f.svc.Send([]byte("frame")))
	require.Equal(t, 1, f.conn.sentCount())
}

func TestStreamService_StartWhileActiveIsNoop(t *testing.T) {
	f := newStreamFixture()
	f.startOpen(t)

	err := f.svc.Start(context.Background(), "")
	require.ErrorIs(t, err, entity.ErrSessionActive)
	require.EqualValues(t, 1, f.dialer.calls.Load())
	require.EqualValues(t, 1, f.camera.opens.Load())
	require.Equal(t, entity.StreamOpen, f.svc.State())

	f.svc.Stop()
}

func TestStreamService_DialFailureEndsClosedWithError(t *testing.T) {
	f := newStreamFixture()
	f.dialer.err = errors.New("connection refused")

	require.NoError(t, f.svc.Start(context.Background(), ""))
	require.Eventually(t, f.stateIs(entity.StreamClosed), waitFor, pollAt)
	require.Equal(t, "WebSocket connection failed.", f.svc.LastError())
	require.Zero(t, f.camera.opens.Load())
	require.Empty(t, f.tickers)
}

func TestStreamService_TransportErrorTearsDownCapture(t *testing.T) {
	f := newStreamFixture()
	ticker := f.startOpen(t)

	f.conn.failure <- errors.New("connection reset by peer")

	require.Eventually(t, f.device.closed.Load, waitFor, pollAt)
	require.Equal(t, entity.StreamClosed, f.svc.State())
	require.Equal(t, "WebSocket connection failed.", f.svc.LastError())
	require.True(t, ticker.stopped.Load())
	require.False(t, ticker.tick())
	require.Zero(t, f.conn.sentCount())
}

func TestStreamService_RemoteCloseIsNotAnError(t *testing.T) {
	f := newStreamFixture()
	ticker := f.startOpen(t)

	f.conn.failure <- io.EOF

	require.Eventually(t, f.device.closed.Load, waitFor, pollAt)
	require.Equal(t, entity.StreamClosed, f.svc.State())
	require.Empty(t, f.svc.LastError())
	require.True(t, ticker.stopped.Load())
}

func TestStreamService_CameraDeniedKeepsSocketOpen(t *testing.T) {
	f := newStreamFixture()
	f.camera.err = entity.ErrCameraUnavailable

	require.NoError(t, f.svc.Start(context.Background(), ""))
	require.Eventually(t, func() bool { return f.svc.LastError() != "" }, waitFor, pollAt)

	require.Equal(t, entity.StreamOpen, f.svc.State())
	require.False(t, f.svc.CameraActive())
	require.Contains(t, f.svc.LastError(), "Error accessing camera")
	require.Empty(t, f.tickers)
	require.Zero(t, f.conn.sentCount())

	f.conn.inbound <- []byte(`{"type":"status","message":"ok"}`)
	require.Eventually(t, func() bool { return f.board.LastStatus() == "ok" }, waitFor, pollAt)

	f.svc.Stop()
	require.Equal(t, entity.StreamClosed, f.svc.State())
}

func TestStreamService_DispatchesInboundMessages(t *testing.T) {
	f := newStreamFixture()
	f.startOpen(t)

	f.conn.inbound <- []byte(`{"type":"detections","detections":[{"label":"fire","confidence":0.91,"box":[1,2,30,40]}]}`)
	require.Eventually(t, func() bool { return len(f.board.Snapshot()) == 1 }, waitFor, pollAt)
	require.Equal(t, "fire", f.board.Snapshot()[0].Label)

	f.conn.inbound <- []byte(`{"type":"heartbeat"}`)
	f.conn.inbound <- []byte(`not json`)
	f.conn.inbound <- []byte(`{"type":"status","message":"model warm"}`)
	require.Eventually(t, func() bool { return f.board.LastStatus() == "model warm" }, waitFor, pollAt)
	require.Len(t, f.board.Snapshot(), 1)
	require.Equal(t, entity.StreamOpen, f.svc.State())

	f.conn.inbound <- []byte(`{"type":"detections","detections":[]}`)
	require.Eventually(t, func() bool { return len(f.board.Snapshot()) == 0 }, waitFor, pollAt)

	f.svc.Stop()
}

func TestStreamService_OwnerCancelTearsDown(t *testing.T) {
	f := newStreamFixture()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, f.svc.Start(ctx, ""))
	require.Eventually(t, f.svc.CameraActive, waitFor, pollAt)
	ticker := <-f.tickers

	cancel()

	require.Eventually(t, f.stateIs(entity.StreamClosed), waitFor, pollAt)
	require.Eventually(t, f.device.closed.Load, waitFor, pollAt)
	require.True(t, ticker.stopped.Load())
	require.True(t, f.conn.isClosed())
	require.Empty(t, f.svc.LastError())
}

func TestStreamService_StopDuringConnect(t *testing.T) {
	f := newStreamFixture()
	f.dialer.gate = make(chan struct{})

	require.NoError(t, f.svc.Start(context.Background(), ""))
	require.Equal(t, entity.StreamConnecting, f.svc.State())

	f.svc.Stop()
	require.Equal(t, entity.StreamClosed, f.svc.State())

	close(f.dialer.gate)
	require.Eventually(t, f.conn.isClosed, waitFor, pollAt)
	require.Equal(t, entity.StreamClosed, f.svc.State())
	require.Zero(t, f.camera.opens.Load())
}

func TestStreamService_StopIsIdempotentAndRestartable(t *testing.T) {
	f := newStreamFixture()
	f.startOpen(t)

	f.svc.Stop()
	f.svc.Stop()
	require.Equal(t, entity.StreamClosed, f.svc.State())

	f.conn = newFakeConn()
	f.dialer.conn = f.conn
	f.device.closed.Store(false)

	ticker := f.startOpen(t)
	require.True(t, ticker.tick())
	require.Eventually(t, func() bool { return f.conn.sentCount() == 1 }, waitFor, pollAt)
	require.Equal(t, "ws://detector.test/ws/detect", f.svc.Snapshot().Endpoint)

	require.NoError(t, f.svc.Close())
	require.Equal(t, entity.StreamClosed, f.svc.State())
}
