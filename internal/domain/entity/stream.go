package entity

// StreamState состояние живой сессии с детектором.
type StreamState string

const (
	StreamIdle       StreamState = "idle"
	StreamConnecting StreamState = "connecting"
	StreamOpen       StreamState = "open"
	StreamClosed     StreamState = "closed"
	StreamErrored    StreamState = "errored"
)

var streamTransitions = map[StreamState][]StreamState{
	StreamIdle:       {StreamConnecting},
	StreamConnecting: {StreamOpen, StreamErrored, StreamClosed},
	StreamOpen:       {StreamClosed, StreamErrored},
	StreamErrored:    {StreamClosed},
	StreamClosed:     {StreamConnecting}, // новая сессия после остановки
}

// CanTransition проверяет допустимость перехода между состояниями
func CanTransition(from, to StreamState) bool {
	for _, allowed := range streamTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Active сообщает, что сессия существует (подключается или открыта).
func (s StreamState) Active() bool {
	return s == StreamConnecting || s == StreamOpen
}

// Terminal сообщает, что новая сессия может быть создана.
func (s StreamState) Terminal() bool {
	return s == StreamIdle || s == StreamClosed
}

// StreamSnapshot то, что показывает панель наблюдения.
type StreamSnapshot struct {
	State        StreamState `json:"state"`
	Connected    bool        `json:"connected"`
	CameraActive bool        `json:"camera_active"`
	Endpoint     string      `json:"endpoint,omitempty"`
	Error        string      `json:"error,omitempty"`
	FramesSent   uint64      `json:"frames_sent"`
	Detections   []Detection `json:"detections"`
	LastStatus   string      `json:"last_status,omitempty"`
}
