package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized бэкенд ответил 401 на авторизованный запрос.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials неверный логин или пароль при входе.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrMissingCredentials логин или пароль не заполнены.
	ErrMissingCredentials = errors.New("username and password are required")
	ErrNoImage            = errors.New("no image selected")
	ErrSessionActive      = errors.New("stream session already active")
	ErrCameraUnavailable  = errors.New("camera is unavailable")
	ErrNotOpen            = errors.New("stream is not open")
	ErrInvalidSettings    = errors.New("invalid settings")
)

// StatusError ответ бэкенда с кодом вне 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bad status: %d", e.Code)
	}
	return fmt.Sprintf("bad status: %d, error: %s", e.Code, e.Body)
}
