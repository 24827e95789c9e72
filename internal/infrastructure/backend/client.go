package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/logger"
)

const (
	tokenPath         = "/api/token/"
	incidentsPath     = "/api/incidents/"
	notificationsPath = "/api/notifications/"
	detectPath        = "/api/ai/incident/"

	maxErrorBody = 512
)

// Client REST-клиент бэкенда. Авторизованные запросы несут bearer-токен сессии,
// любой 401 передаётся сессии как глобальный выход.
type Client struct {
	baseURL string
	http    *http.Client
	session port.Session
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SetSession подключает сессию оператора. Вызывается один раз при сборке приложения.
func (c *Client) SetSession(session port.Session) {
	c.session = session
}

// ObtainTokens выполняет вход. 401 здесь означает неверные учётные данные и не трогает сессию.
func (c *Client) ObtainTokens(ctx context.Context, creds entity.Credentials) (entity.Tokens, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return entity.Tokens{}, fmt.Errorf("encode credentials: %w", err)
	}

	var tokens entity.Tokens
	err = c.do(ctx, http.MethodPost, tokenPath, bytes.NewReader(body), "application/json", &tokens, false)
	if err != nil {
		return entity.Tokens{}, err
	}
	if !tokens.Valid() {
		return entity.Tokens{}, fmt.Errorf("token response without access token")
	}
	return tokens, nil
}

func (c *Client) ListIncidents(ctx context.Context) ([]entity.Incident, error) {
	var incidents []entity.Incident
	if err := c.do(ctx, http.MethodGet, incidentsPath, nil, "", &incidents, true); err != nil {
		return nil, err
	}
	return incidents, nil
}

func (c *Client) UpdateIncidentStatus(ctx context.Context, id int64, status string) error {
	body, _ := json.Marshal(map[string]string{"status": status})
	path := fmt.Sprintf("%s%d/", incidentsPath, id)
	return c.do(ctx, http.MethodPatch, path, bytes.NewReader(body), "application/json", nil, true)
}

func (c *Client) ListNotifications(ctx context.Context) ([]entity.Notification, error) {
	var list []entity.Notification
	if err := c.do(ctx, http.MethodGet, notificationsPath, nil, "", &list, true); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	body, _ := json.Marshal(map[string]bool{"is_read": true})
	path := fmt.Sprintf("%s%d/", notificationsPath, id)
	return c.do(ctx, http.MethodPatch, path, bytes.NewReader(body), "application/json", nil, true)
}

// DetectImage отправляет снимок полем image формы multipart
func (c *Client) DetectImage(ctx context.Context, upload *entity.ImageUpload) ([]entity.Detection, error) {
	if upload.Empty() {
		return nil, entity.ErrNoImage
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := upload.Filename
	if filename == "" {
		filename = "image.jpg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", http.DetectContentType(upload.Data))

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	var resp entity.DetectionResponse
	if err := c.do(ctx, http.MethodPost, detectPath, &buf, writer.FormDataContentType(), &resp, true); err != nil {
		return nil, err
	}
	if resp.Detections == nil {
		resp.Detections = []entity.Detection{}
	}
	return resp.Detections, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any, authorized bool) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if authorized && c.session != nil {
		if token, ok := c.session.AccessToken(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		if authorized && c.session != nil {
			logger.Warn("Backend", "%s %s: 401, ending session", method, path)
			c.session.HandleUnauthorized()
		}
		return entity.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &entity.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Incidents возвращает журнал происшествий поверх клиента
func (c *Client) Incidents() port.IncidentRepository {
	return incidentRepository{c}
}

// Notifications возвращает уведомления поверх клиента
func (c *Client) Notifications() port.NotificationRepository {
	return notificationRepository{c}
}

type incidentRepository struct{ c *Client }

func (r incidentRepository) List(ctx context.Context) ([]entity.Incident, error) {
	return r.c.ListIncidents(ctx)
}

func (r incidentRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.c.UpdateIncidentStatus(ctx, id, status)
}

type notificationRepository struct{ c *Client }

func (r notificationRepository) List(ctx context.Context) ([]entity.Notification, error) {
	return r.c.ListNotifications(ctx)
}

func (r notificationRepository) MarkRead(ctx context.Context, id int64) error {
	return r.c.MarkNotificationRead(ctx, id)
}

var (
	_ port.Authenticator = (*Client)(nil)
	_ port.ImageDetector = (*Client)(nil)
)
