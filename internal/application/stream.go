package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/logger"
)

const (
	// DefaultCaptureInterval шаг цикла захвата кадров.
	DefaultCaptureInterval = 500 * time.Millisecond

	msgConnectionFailed = "WebSocket connection failed."
)

// StreamConfig параметры живого потока.
type StreamConfig struct {
	Endpoint        string
	CaptureInterval time.Duration
	NewTicker       port.TickerFactory
	Metrics         port.StreamMetrics
}

// StreamService управляет одной сессией с детектором: соединение, цикл захвата
// кадров и разбор входящих сообщений.
type StreamService struct {
	dialer    port.StreamDialer
	camera    port.Camera
	encoder   port.FrameEncoder
	board     *DetectionBoard
	metrics   port.StreamMetrics
	endpoint  string
	interval  time.Duration
	newTicker port.TickerFactory

	mu      sync.Mutex
	state   entity.StreamState
	lastErr string
	current *streamSession
	seq     uint64
}

type streamSession struct {
	id       uint64
	endpoint string
	ctx      context.Context
	cancel   context.CancelFunc

	// поля ниже защищены StreamService.mu
	conn        port.StreamConn
	device      port.CaptureDevice
	captureStop chan struct{}
	captureDone chan struct{}

	framesSent atomic.Uint64
}

// NewStreamService создаёт менеджер живого потока в состоянии Idle.
func NewStreamService(dialer port.StreamDialer, camera port.Camera, encoder port.FrameEncoder, board *DetectionBoard, cfg StreamConfig) *StreamService {
	if cfg.CaptureInterval <= 0 {
		cfg.CaptureInterval = DefaultCaptureInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &StreamService{
		dialer:    dialer,
		camera:    camera,
		encoder:   encoder,
		board:     board,
		metrics:   cfg.Metrics,
		endpoint:  cfg.Endpoint,
		interval:  cfg.CaptureInterval,
		newTicker: cfg.NewTicker,
		state:     entity.StreamIdle,
	}
}

// Start открывает новую сессию. Если сессия уже есть, ничего не делает и возвращает ErrSessionActive.
// ctx задаёт время жизни владельца: его отмена закрывает сессию.
func (s *StreamService) Start(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		endpoint = s.endpoint
	}

	s.mu.Lock()
	if s.current != nil {
		state := s.state
		s.mu.Unlock()
		logger.Warn("Stream", "Start ignored: session already %s", state)
		return entity.ErrSessionActive
	}

	s.seq++
	sessCtx, cancel := context.WithCancel(ctx)
	sess := &streamSession{
		id:       s.seq,
		endpoint: endpoint,
		ctx:      sessCtx,
		cancel:   cancel,
	}
	s.current = sess
	s.lastErr = ""
	s.setStateLocked(entity.StreamConnecting)
	s.mu.Unlock()

	logger.Info("Stream", "Session %d connecting to %s", sess.id, endpoint)

	go s.connect(sess)
	go func() {
		<-sessCtx.Done()
		s.closeSession(sess, nil)
	}()
	return nil
}

// Stop закрывает текущую сессию. Повторный вызов безопасен.
func (s *StreamService) Stop() {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		return
	}
	logger.Info("Stream", "Session %d stopped by operator", sess.id)
	s.closeSession(sess, nil)
}

// Close освобождает ресурсы при остановке владельца.
func (s *StreamService) Close() error {
	s.Stop()
	return nil
}

// Send отправляет кадр, если соединение открыто. Иначе кадр отбрасывается.
func (s *StreamService) Send(frame []byte) bool {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		s.metrics.FrameDropped()
		logger.Debug("Stream", "Frame dropped: no session")
		return false
	}
	return s.sendFrame(sess, frame)
}

// State возвращает состояние сессии.
func (s *StreamService) State() entity.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError возвращает последнюю ошибку, показанную оператору.
func (s *StreamService) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// CameraActive сообщает, захвачена ли камера.
func (s *StreamService) CameraActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.device != nil
}

// Snapshot собирает состояние для панели наблюдения.
func (s *StreamService) Snapshot() entity.StreamSnapshot {
	s.mu.Lock()
	snap := entity.StreamSnapshot{
		State:     s.state,
		Connected: s.state == entity.StreamOpen,
		Error:     s.lastErr,
	}
	if s.current != nil {
		snap.Endpoint = s.current.endpoint
		snap.CameraActive = s.current.device != nil
		snap.FramesSent = s.current.framesSent.Load()
	}
	s.mu.Unlock()

	snap.Detections = s.board.Snapshot()
	snap.LastStatus = s.board.LastStatus()
	return snap
}

func (s *StreamService) connect(sess *streamSession) {
	conn, err := s.dialer.Dial(sess.ctx, sess.endpoint)

	s.mu.Lock()
	if s.current != sess {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		s.mu.Unlock()
		if sess.ctx.Err() != nil {
			s.closeSession(sess, nil)
			return
		}
		logger.Error("Stream", "Session %d connect %s: %v", sess.id, sess.endpoint, err)
		s.closeSession(sess, err)
		return
	}
	sess.conn = conn
	s.setStateLocked(entity.StreamOpen)
	s.mu.Unlock()

	logger.Info("Stream", "Session %d connected", sess.id)

	go s.readLoop(sess, conn)
	s.startCapture(sess)
}

// startCapture захватывает камеру и запускает цикл. Отказ камеры не меняет состояние сокета.
func (s *StreamService) startCapture(sess *streamSession) {
	device, err := s.camera.Open(sess.ctx)

	s.mu.Lock()
	if s.current != sess || s.state != entity.StreamOpen {
		s.mu.Unlock()
		if device != nil {
			_ = device.Close()
		}
		return
	}
	if err != nil {
		s.lastErr = "Error accessing camera: " + err.Error()
		s.mu.Unlock()
		logger.Error("Stream", "Session %d camera: %v", sess.id, err)
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	sess.device = device
	sess.captureStop = stop
	sess.captureDone = done
	s.mu.Unlock()

	logger.Info("Stream", "Session %d capturing every %s", sess.id, s.interval)
	go s.captureLoop(sess, device, stop, done)
}

func (s *StreamService) captureLoop(sess *streamSession, device port.CaptureDevice, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			select {
			case <-stop:
				return
			default:
			}
			s.captureTick(sess, device)
		}
	}
}

func (s *StreamService) captureTick(sess *streamSession, device port.CaptureDevice) {
	s.mu.Lock()
	ready := s.current == sess && s.state == entity.StreamOpen && sess.device != nil
	s.mu.Unlock()

	if !ready {
		s.metrics.FrameSkipped()
		logger.Debug("Stream", "Skipping frame send, something not ready")
		return
	}

	img, err := device.Frame()
	if err != nil {
		s.metrics.FrameSkipped()
		logger.Debug("Stream", "Skipping frame: %v", err)
		return
	}

	payload, err := s.encoder.Encode(img)
	if err != nil {
		s.metrics.FrameSkipped()
		logger.Warn("Stream", "Encode frame: %v", err)
		return
	}

	s.sendFrame(sess, payload)
}

func (s *StreamService) sendFrame(sess *streamSession, payload []byte) bool {
	s.mu.Lock()
	if s.current != sess || s.state != entity.StreamOpen || sess.conn == nil {
		s.mu.Unlock()
		s.metrics.FrameDropped()
		logger.Debug("Stream", "Frame dropped: stream is not open")
		return false
	}
	conn := sess.conn
	s.mu.Unlock()

	if err := conn.Send(payload); err != nil {
		s.metrics.FrameDropped()
		logger.Warn("Stream", "Session %d send frame: %v", sess.id, err)
		return false
	}

	sess.framesSent.Add(1)
	s.metrics.FrameSent(len(payload))
	logger.Debug("Stream", "Frame sent (%d bytes)", len(payload))
	return true
}

func (s *StreamService) readLoop(sess *streamSession, conn port.StreamConn) {
	for {
		data, err := conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("Stream", "Session %d closed by remote", sess.id)
				s.closeSession(sess, nil)
			} else {
				s.closeSession(sess, err)
			}
			return
		}
		s.dispatch(sess, data)
	}
}

func (s *StreamService) dispatch(sess *streamSession, data []byte) {
	s.mu.Lock()
	current := s.current == sess
	s.mu.Unlock()
	if !current {
		return
	}

	msg, ok := entity.ParseInboundMessage(data)
	if !ok || !s.board.Apply(msg) {
		s.metrics.MessageDropped()
		logger.Debug("Stream", "Invalid message format, dropped (%d bytes)", len(data))
		return
	}
	s.metrics.MessageReceived(msg.Kind)
}

// closeSession разбирает сессию на любом пути выхода: стоп, ошибка, закрытие удалённой стороной
// или отмена владельца. После возврата тиков больше нет, камера освобождена.
func (s *StreamService) closeSession(sess *streamSession, cause error) {
	s.mu.Lock()
	if s.current != sess {
		s.mu.Unlock()
		return
	}
	if cause != nil {
		s.setStateLocked(entity.StreamErrored)
		s.lastErr = msgConnectionFailed
		logger.Error("Stream", "Session %d failed: %v", sess.id, cause)
	}
	s.current = nil
	conn := sess.conn
	device := sess.device
	stop, done := sess.captureStop, sess.captureDone
	sess.device = nil
	s.setStateLocked(entity.StreamClosed)
	s.mu.Unlock()

	sess.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	if stop != nil {
		close(stop)
		<-done
	}
	if device != nil {
		if err := device.Close(); err != nil {
			logger.Warn("Stream", "Release camera: %v", err)
		}
	}
	logger.Info("Stream", "Session %d closed (%d frames sent)", sess.id, sess.framesSent.Load())
}

func (s *StreamService) setStateLocked(to entity.StreamState) {
	if !entity.CanTransition(s.state, to) {
		logger.Warn("Stream", "Invalid transition %s -> %s", s.state, to)
		return
	}
	s.state = to
	s.metrics.StateChanged(to)
}

// timeTicker оборачивает time.Ticker
type timeTicker struct {
	t *time.Ticker
}

// NewTimeTicker фабрика тикеров на time.Ticker.
func NewTimeTicker(d time.Duration) port.Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

type noopMetrics struct{}

func (noopMetrics) FrameSent(int)                      {}
func (noopMetrics) FrameSkipped()                      {}
func (noopMetrics) FrameDropped()                      {}
func (noopMetrics) MessageReceived(entity.MessageKind) {}
func (noopMetrics) MessageDropped()                    {}
func (noopMetrics) StateChanged(entity.StreamState)    {}
