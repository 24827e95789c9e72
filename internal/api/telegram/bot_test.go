package telegram

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	app "safe-eye-console/internal/application"
	"safe-eye-console/internal/container"
	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/infrastructure/storage"
	"safe-eye-console/internal/infrastructure/vision"
)

const testChat = 42

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	fileURL  string
	updates  chan tgbotapi.Update
	stopped  bool
}

func (a *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return a.updates
}

func (a *fakeAPI) StopReceivingUpdates() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}

func (a *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	a.mu.Lock()
	a.sent = append(a.sent, c)
	a.mu.Unlock()
	return tgbotapi.Message{}, nil
}

func (a *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	a.mu.Lock()
	a.requests = append(a.requests, c)
	a.mu.Unlock()
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (a *fakeAPI) GetFileDirectURL(string) (string, error) {
	return a.fileURL, nil
}

func (a *fakeAPI) texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, c := range a.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (a *fakeAPI) lastText() string {
	texts := a.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// textsTo возвращает сообщения, отправленные в чат chatID
func (a *fakeAPI) textsTo(chatID int64) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, c := range a.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (a *fakeAPI) photos() []tgbotapi.PhotoConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []tgbotapi.PhotoConfig
	for _, c := range a.sent {
		if p, ok := c.(tgbotapi.PhotoConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

type fakeAuth struct{}

func (fakeAuth) ObtainTokens(_ context.Context, creds entity.Credentials) (entity.Tokens, error) {
	if creds.Password != "secret" {
		return entity.Tokens{}, entity.ErrUnauthorized
	}
	return entity.Tokens{Access: "tok", Refresh: "ref"}, nil
}

type fakeIncidents struct {
	mu    sync.Mutex
	acked []int64
}

func (r *fakeIncidents) List(context.Context) ([]entity.Incident, error) {
	day := time.Date(2025, 3, 10, 8, 0, 0, 0, time.Local)
	return []entity.Incident{
		{ID: 3, IncidentType: "murder", Location: "Square", Timestamp: day},
		{ID: 2, IncidentType: "normal", Location: "Depot", Timestamp: day.Add(-time.Hour)},
		{ID: 1, IncidentType: "accident", Timestamp: day.Add(-2 * time.Hour)},
	}, nil
}

func (r *fakeIncidents) UpdateStatus(_ context.Context, id int64, _ string) error {
	r.mu.Lock()
	r.acked = append(r.acked, id)
	r.mu.Unlock()
	return nil
}

type fakeNotifications struct{}

func (fakeNotifications) List(context.Context) ([]entity.Notification, error) { return nil, nil }
func (fakeNotifications) MarkRead(context.Context, int64) error            { return nil }

type fakeDetector struct {
	detections []entity.Detection
	err        error
}

func (d *fakeDetector) DetectImage(context.Context, *entity.ImageUpload) ([]entity.Detection, error) {
	return d.detections, d.err
}

type botEnv struct {
	bot       *Bot
	api       *fakeAPI
	container *container.Container
	incidents *fakeIncidents
	detector  *fakeDetector
}

func newBotEnv(t *testing.T) *botEnv {
	t.Helper()

	env := &botEnv{
		api:       &fakeAPI{updates: make(chan tgbotapi.Update)},
		incidents: &fakeIncidents{},
		detector:  &fakeDetector{},
	}
	env.container = container.New(container.Deps{
		Authenticator: fakeAuth{},
		Incidents:     env.incidents,
		Notifications: fakeNotifications{},
		Detector:      env.detector,
		Tokens:        storage.NewMemoryTokenStore(),
		SettingsStore: storage.NewYAMLSettingsStore(filepath.Join(t.TempDir(), "settings.yaml")),
		Operators:     storage.NewMemoryOperatorRepository(),
		Camera:        vision.NewDirectoryCamera(t.TempDir()),
		Encoder:       vision.NewJPEGEncoder(0, 0, 0),
		Annotator:     vision.NewAnnotator(),
		Stream:        app.StreamConfig{Endpoint: "ws://detector.test/ws/detect/"},
		Site:          app.SiteInfo{Cameras: 24, CoverageAreas: 8},
	})
	t.Cleanup(env.container.Stream.Stop)
	env.bot = newBot(env.api, env.container)
	return env
}

func command(text string) *tgbotapi.Message {
	return commandFrom(testChat, text)
}

func commandFrom(chatID int64, text string) *tgbotapi.Message {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: chatID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func (e *botEnv) send(msg *tgbotapi.Message) {
	e.bot.handleMessage(context.Background(), msg)
}

func (e *botEnv) login(t *testing.T) {
	t.Helper()
	e.send(command("/login admin secret"))
	require.Equal(t, msgLoggedIn, e.api.lastText())
}

func TestBot_Start(t *testing.T) {
	env := newBotEnv(t)
	env.send(command("/start"))
	require.Equal(t, msgStart, env.api.lastText())
}

func TestBot_CommandsRequireLogin(t *testing.T) {
	env := newBotEnv(t)

	for _, cmd := range []string{"/stats", "/incidents", "/alerts", "/ack 3", "/live_start", "/detect"} {
		env.send(command(cmd))
		require.Equal(t, msgLoginRequired, env.api.lastText(), cmd)
	}
}

func TestBot_LoginDeletesPasswordMessage(t *testing.T) {
	env := newBotEnv(t)

	env.send(command("/login admin wrong"))
	require.Equal(t, msgBadCredentials, env.api.lastText())
	require.False(t, env.container.Auth.Authenticated())

	env.send(command("/login admin"))
	require.Equal(t, msgLoginUsage, env.api.lastText())

	env.login(t)
	require.True(t, env.container.Auth.Authenticated())

	env.api.mu.Lock()
	defer env.api.mu.Unlock()
	require.Len(t, env.api.requests, 3)
	del, ok := env.api.requests[2].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	require.Equal(t, 7, del.MessageID)
}

func TestBot_StatsIncidentsAlerts(t *testing.T) {
	env := newBotEnv(t)
	env.login(t)

	env.send(command("/stats"))
	stats := env.api.lastText()
	require.Contains(t, stats, "Активные тревоги: 2")
	require.Contains(t, stats, "Всего событий: 3")
	require.Contains(t, stats, "Камеры: 24")

	env.send(command("/incidents depot"))
	require.Contains(t, env.api.lastText(), "#2 normal — Depot")

	env.send(command("/incidents nothing-matches"))
	require.Equal(t, "📜 Записей не найдено.", env.api.lastText())

	env.send(command("/alerts"))
	alerts := env.api.lastText()
	require.Contains(t, alerts, "‼️ #3 murder — Square")
	require.Contains(t, alerts, "#1 accident — Unknown")
	require.NotContains(t, alerts, "Depot")
}

func TestBot_Acknowledge(t *testing.T) {
	env := newBotEnv(t)
	env.login(t)

	env.send(command("/ack nope"))
	require.Equal(t, msgAckUsage, env.api.lastText())

	env.send(command("/ack 3"))
	require.Equal(t, "✅ Тревога #3 подтверждена.", env.api.lastText())
	require.Equal(t, []int64{3}, env.incidents.acked)
}

func TestBot_LiveStreamCommands(t *testing.T) {
	env := newBotEnv(t)
	env.login(t)

	env.send(command("/live"))
	require.Contains(t, env.api.lastText(), "Детекций нет.")

	env.container.Board.Replace([]entity.Detection{{Label: "fire", Confidence: 0.5}})
	env.send(command("/live"))
	require.Contains(t, env.api.lastText(), "fire (50.0%)")

	env.send(command("/live_stop"))
	require.Equal(t, msgStreamStopped, env.api.lastText())
	require.False(t, env.container.Stream.State().Active())
}

func jpegFixture(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(64, 48, color.NRGBA{R: 20, G: 120, B: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func photoMessage() *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 9,
		From:      &tgbotapi.User{ID: testChat},
		Chat:      &tgbotapi.Chat{ID: testChat},
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", FileUniqueID: "s"},
			{FileID: "large", FileUniqueID: "l"},
		},
	}
}

func TestBot_DetectPhoto(t *testing.T) {
	env := newBotEnv(t)
	env.login(t)

	data := jpegFixture(t)
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	}))
	t.Cleanup(files.Close)
	env.api.fileURL = files.URL

	// без /detect фото не обрабатывается
	env.send(photoMessage())
	require.Equal(t, msgSendPhoto, env.api.lastText())

	env.detector.detections = []entity.Detection{{Label: "accident", Confidence: 0.93, Box: &entity.Box{X1: 4, Y1: 4, X2: 30, Y2: 30}}}
	env.send(command("/detect"))
	require.Equal(t, msgAwaitingPhoto, env.api.lastText())

	env.send(photoMessage())

	photos := env.api.photos()
	require.Len(t, photos, 1)
	require.Contains(t, photos[0].Caption, "accident (93.0%)")
	file, ok := photos[0].File.(tgbotapi.FileBytes)
	require.True(t, ok)
	_, _, err := image.Decode(bytes.NewReader(file.Bytes))
	require.NoError(t, err)

	require.Equal(t, env.detector.detections, env.container.Board.Snapshot())

	operator, err := env.container.Operators.Get(context.Background(), testChat, testChat)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, operator.State)
}

func TestBot_DetectNothingFound(t *testing.T) {
	env := newBotEnv(t)
	env.login(t)

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(jpegFixture(t))
	}))
	t.Cleanup(files.Close)
	env.api.fileURL = files.URL

	env.send(command("/detect"))
	env.send(photoMessage())
	require.Equal(t, msgNoDetections, env.api.lastText())
	require.Empty(t, env.api.photos())
}

func TestBot_SessionExpiredBroadcastOnce(t *testing.T) {
	env := newBotEnv(t)
	env.login(t)

	env.container.Auth.HandleUnauthorized()
	env.container.Auth.HandleUnauthorized()

	count := 0
	for _, text := range env.api.texts() {
		if text == msgSessionExpired {
			count++
		}
	}
	require.Equal(t, 1, count)
	require.False(t, env.container.Auth.Authenticated())

	env.send(command("/stats"))
	require.Equal(t, msgLoginRequired, env.api.lastText())
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	env := newBotEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.bot.Run(ctx) }()

	env.api.updates <- tgbotapi.Update{Message: command("/help")}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
	require.Equal(t, msgHelp, env.api.lastText())
	require.True(t, env.api.stopped)
}

func TestBot_OtherChatsNeedTheirOwnLogin(t *testing.T) {
	env := newBotEnv(t)
	env.login(t)
	const stranger = 99

	for _, cmd := range []string{"/stats", "/incidents", "/ack 3", "/live_start", "/detect"} {
		env.send(commandFrom(stranger, cmd))
		texts := env.api.textsTo(stranger)
		require.Equal(t, msgLoginRequired, texts[len(texts)-1], cmd)
	}
	require.Empty(t, env.incidents.acked)
	require.False(t, env.container.Stream.State().Active())

	env.send(command("/stats"))
	require.Contains(t, env.api.lastText(), "Сводка")

	env.send(commandFrom(stranger, "/login admin secret"))
	env.send(commandFrom(stranger, "/ack 3"))
	require.Equal(t, []int64{3}, env.incidents.acked)
}

func TestBot_SessionExpiredOnlyToSignedInChats(t *testing.T) {
	env := newBotEnv(t)
	env.login(t)
	const stranger = 99
	env.send(commandFrom(stranger, "/help"))

	env.container.Auth.HandleUnauthorized()

	require.Contains(t, env.api.textsTo(testChat), msgSessionExpired)
	require.NotContains(t, env.api.textsTo(stranger), msgSessionExpired)
}

func TestBot_LogoutRevokesChats(t *testing.T) {
	env := newBotEnv(t)
	env.login(t)

	env.send(command("/logout"))
	require.Equal(t, msgLoggedOut, env.api.lastText())

	// новый вход через другой канал не возвращает доступ этому чату
	require.NoError(t, env.container.Auth.Login(context.Background(), "admin", "secret"))
	env.send(command("/stats"))
	require.Equal(t, msgLoginRequired, env.api.lastText())
}
