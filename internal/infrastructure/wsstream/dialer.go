package wsstream

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/net/websocket"

	"safe-eye-console/internal/domain/port"
)

// Dialer открывает сокет детектора на golang.org/x/net/websocket
type Dialer struct {
	origin string
}

// NewDialer создаёт dialer. Пустой origin выводится из адреса сокета.
func NewDialer(origin string) *Dialer {
	return &Dialer{origin: origin}
}

func (d *Dialer) Dial(ctx context.Context, endpoint string) (port.StreamConn, error) {
	origin := d.origin
	if origin == "" {
		var err error
		if origin, err = originFor(endpoint); err != nil {
			return nil, err
		}
	}

	cfg, err := websocket.NewConfig(endpoint, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config %s: %w", endpoint, err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &conn{ws: ws}, nil
}

func originFor(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

// conn одно соединение: кадры уходят бинарными сообщениями, ответы приходят текстом
type conn struct {
	ws   *websocket.Conn
	once sync.Once
	err  error
}

func (c *conn) Send(frame []byte) error {
	return websocket.Message.Send(c.ws, frame)
}

// Receive возвращает io.EOF, когда удалённая сторона закрыла соединение
func (c *conn) Receive() ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(c.ws, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *conn) Close() error {
	c.once.Do(func() {
		c.err = c.ws.Close()
	})
	return c.err
}

var _ port.StreamDialer = (*Dialer)(nil)
