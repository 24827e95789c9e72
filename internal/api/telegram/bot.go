package telegram

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"safe-eye-console/internal/container"
	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/logger"
)

const (
	msgStart = `👋 Привет! Это консоль оператора Safe Eye.

🔐 Сначала войдите: /login <логин> <пароль>

📋 Команды:
/stats — сводка по объекту
/incidents [поиск] — журнал событий
/alerts — активные тревоги
/live_start, /live_stop, /live — живой поток
/detect — проверить снимок
/help — справка`

	msgHelp = `ℹ️ Как пользоваться консолью:

🔐 /login <логин> <пароль> — вход, /logout — выход
📊 /stats — сводка: тревоги, события, камеры
📜 /incidents [поиск] — последние записи журнала
🚨 /alerts — активные тревоги, /ack <id> — подтвердить
🎥 /live_start — начать поток с камеры на детектор
⏹ /live_stop — остановить поток
👁 /live — состояние потока и последние детекции
📸 /detect — затем отправьте фото для ручной проверки
❌ /cancel — отменить текущую операцию`

	msgLoginUsage      = "🔐 Использование: /login <логин> <пароль>"
	msgLoggedIn        = "✅ Вход выполнен."
	msgBadCredentials  = "❌ Неверный логин или пароль."
	msgLoggedOut       = "👋 Вы вышли из системы."
	msgLoginRequired   = "🔐 Требуется вход: /login <логин> <пароль>"
	msgSessionExpired  = "⌛ Сессия истекла. Войдите снова: /login <логин> <пароль>"
	msgAwaitingPhoto   = "📸 Отправьте фото для проверки."
	msgCancelled       = "❌ Операция отменена."
	msgSendPhoto       = "📸 Чтобы проверить снимок, отправьте /detect, затем фото."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing      = "⏳ Обрабатываю изображение..."
	msgNoDetections    = "✅ Ничего не обнаружено."
	msgProcessingError = "⚠️ Не удалось обработать изображение. Попробуйте другое фото."
	msgBackendError    = "⚠️ Бэкенд недоступен, попробуйте позже."
	msgAckUsage        = "Использование: /ack <id>"
	msgStreamStarted   = "🎥 Подключаюсь к детектору..."
	msgStreamActive    = "🎥 Поток уже запущен."
	msgStreamStopped   = "⏹ Поток остановлен."

	maxListed = 10
)

// botAPI методы tgbotapi.BotAPI, которые использует консоль
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot представляет Telegram-консоль оператора
type Bot struct {
	api  botAPI
	c    *container.Container
	http *http.Client

	// baseCtx задаёт время жизни бота; живой поток привязан к нему
	baseCtx context.Context

	// sessions хранит токен, под которым чат прошёл /login
	mu       sync.Mutex
	sessions map[int64]string
}

// NewBot создаёт бота поверх авторизованного клиента Telegram
func NewBot(api *tgbotapi.BotAPI, c *container.Container) *Bot {
	logger.Info("Telegram", "Authorized on account %s", api.Self.UserName)
	return newBot(api, c)
}

func newBot(api botAPI, c *container.Container) *Bot {
	b := &Bot{
		api:     api,
		c:       c,
		http:    &http.Client{Timeout: 30 * time.Second},
		baseCtx: context.Background(),
		sessions: make(map[int64]string),
	}
	c.Auth.OnLogout(b.broadcastSessionExpired)
	return b
}

// Run запускает основной цикл обработки сообщений до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	b.baseCtx = ctx

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	operator, err := b.c.Operators.Get(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		logger.Error("Telegram", "Get operator: %v", err)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, operator)
		return
	}

	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg, operator)
		return
	}

	b.sendMessage(msg.Chat.ID, msgSendPhoto)
}

// publicCommands доступны без входа
var publicCommands = map[string]bool{
	"start":  true,
	"help":   true,
	"login":  true,
	"cancel": true,
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, operator *entity.Operator) {
	chatID := msg.Chat.ID
	command := msg.Command()

	if !publicCommands[command] && !b.signedIn(chatID) {
		b.sendMessage(chatID, msgLoginRequired)
		return
	}

	switch command {
	case "start":
		b.setState(ctx, operator, entity.StateMainMenu)
		b.sendMessage(chatID, msgStart)

	case "help":
		b.sendMessage(chatID, msgHelp)

	case "login":
		b.handleLogin(ctx, msg)

	case "logout":
		b.c.Auth.Logout()
		b.c.Stream.Stop()
		b.forgetSessions()
		b.sendMessage(chatID, msgLoggedOut)

	case "stats":
		b.handleStats(ctx, chatID)

	case "incidents":
		b.handleIncidents(ctx, chatID, msg.CommandArguments())

	case "alerts":
		b.handleAlerts(ctx, chatID)

	case "ack":
		b.handleAck(ctx, chatID, msg.CommandArguments())

	case "live_start":
		switch err := b.c.Stream.Start(b.baseCtx, ""); {
		case errors.Is(err, entity.ErrSessionActive):
			b.sendMessage(chatID, msgStreamActive)
		case err != nil:
			b.sendMessage(chatID, "⚠️ "+err.Error())
		default:
			b.sendMessage(chatID, msgStreamStarted)
		}

	case "live_stop":
		b.c.Stream.Stop()
		b.sendMessage(chatID, msgStreamStopped)

	case "live":
		b.sendMessage(chatID, formatSnapshot(b.c.Stream.Snapshot()))

	case "detect":
		if _, err := b.c.Operators.BeginDetect(ctx, operator.ID, chatID); err != nil {
			logger.Error("Telegram", "Begin detect: %v", err)
			return
		}
		b.sendMessage(chatID, msgAwaitingPhoto)

	case "cancel":
		if _, err := b.c.Operators.Cancel(ctx, operator.ID, chatID); err != nil {
			logger.Error("Telegram", "Cancel: %v", err)
			return
		}
		b.sendMessage(chatID, msgCancelled)

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

func (b *Bot) handleLogin(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	// сообщение с паролем не остаётся в истории чата
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		logger.Debug("Telegram", "Delete login message: %v", err)
	}
	if len(args) != 2 {
		b.sendMessage(msg.Chat.ID, msgLoginUsage)
		return
	}

	err := b.c.Auth.Login(ctx, args[0], args[1])
	switch {
	case err == nil:
		b.signIn(msg.Chat.ID)
		b.sendMessage(msg.Chat.ID, msgLoggedIn)
	case errors.Is(err, entity.ErrInvalidCredentials):
		b.sendMessage(msg.Chat.ID, msgBadCredentials)
	case errors.Is(err, entity.ErrMissingCredentials):
		b.sendMessage(msg.Chat.ID, msgLoginUsage)
	default:
		b.sendMessage(msg.Chat.ID, msgBackendError)
	}
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	stats, err := b.c.Incidents.Stats(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf(
		"📊 Сводка\n🚨 Активные тревоги: %d\n📜 Всего событий: %d\n📅 Сегодня: %d\n🎥 Камеры: %d\n🗺 Зоны покрытия: %d\n⚙️ Система: %s",
		stats.ActiveAlerts, stats.TotalEvents, stats.EventsToday, stats.Cameras, stats.CoverageAreas, stats.SystemStatus,
	))
}

func (b *Bot) handleIncidents(ctx context.Context, chatID int64, query string) {
	incidents, err := b.c.Incidents.List(ctx, entity.IncidentFilter{Search: query})
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(incidents) == 0 {
		b.sendMessage(chatID, "📜 Записей не найдено.")
		return
	}
	b.sendMessage(chatID, formatIncidents("📜 Журнал событий", incidents))
}

func (b *Bot) handleAlerts(ctx context.Context, chatID int64) {
	alerts, err := b.c.Incidents.ActiveAlerts(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(alerts) == 0 {
		b.sendMessage(chatID, "✅ Активных тревог нет.")
		return
	}
	b.sendMessage(chatID, formatIncidents("🚨 Активные тревоги", alerts))
}

func (b *Bot) handleAck(ctx context.Context, chatID int64, args string) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		b.sendMessage(chatID, msgAckUsage)
		return
	}
	if err := b.c.Incidents.Acknowledge(ctx, id); err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("✅ Тревога #%d подтверждена.", id))
}

// handlePhoto обрабатывает входящее фото
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message, operator *entity.Operator) {
	chatID := msg.Chat.ID
	if operator.State != entity.StateAwaitingPhoto {
		b.sendMessage(chatID, msgSendPhoto)
		return
	}
	if !b.signedIn(chatID) {
		b.setState(ctx, operator, entity.StateMainMenu)
		b.sendMessage(chatID, msgLoginRequired)
		return
	}

	b.setState(ctx, operator, entity.StateProcessing)
	defer b.setState(ctx, operator, entity.StateMainMenu)

	b.sendMessage(chatID, msgProcessing)

	// Получаем файл с максимальным разрешением
	photo := msg.Photo[len(msg.Photo)-1]

	imageData, err := b.downloadFile(ctx, photo.FileID)
	if err != nil {
		logger.Error("Telegram", "Download photo: %v", err)
		b.sendMessage(chatID, msgProcessingError)
		return
	}

	upload := &entity.ImageUpload{Filename: photo.FileUniqueID + ".jpg", Data: imageData}
	detections, err := b.c.Manual.Detect(ctx, upload)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(detections) == 0 {
		b.sendMessage(chatID, msgNoDetections)
		return
	}

	caption := formatDetections(detections)
	annotated, err := b.c.Manual.Annotate(upload, detections)
	if err != nil {
		logger.Warn("Telegram", "Annotate photo: %v", err)
		b.sendMessage(chatID, caption)
		return
	}

	reply := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "detections.jpg", Bytes: annotated})
	reply.Caption = caption
	if _, err := b.api.Send(reply); err != nil {
		logger.Error("Telegram", "Send photo: %v", err)
	}
}

func (b *Bot) replyError(chatID int64, err error) {
	switch {
	case errors.Is(err, entity.ErrUnauthorized):
		// сообщение об истёкшей сессии уже разослано хуком выхода
	case errors.Is(err, entity.ErrNoImage):
		b.sendMessage(chatID, msgAwaitingPhoto)
	default:
		logger.Error("Telegram", "Chat %d: %v", chatID, err)
		b.sendMessage(chatID, msgBackendError)
	}
}

func (b *Bot) setState(ctx context.Context, operator *entity.Operator, state entity.OperatorState) {
	updated, err := b.c.Operators.SetState(ctx, operator.ID, operator.ChatID, state)
	if err != nil {
		logger.Error("Telegram", "Save operator %d: %v", operator.ID, err)
		return
	}
	*operator = *updated
}

func (b *Bot) signIn(chatID int64) {
	token, ok := b.c.Auth.AccessToken()
	if !ok {
		return
	}
	b.mu.Lock()
	b.sessions[chatID] = token
	b.mu.Unlock()
}

// signedIn сообщает, что чат сам вошёл в текущую сессию. Повторный вход через веб
// выдаёт новый токен, и старые чаты снова должны пройти /login.
func (b *Bot) signedIn(chatID int64) bool {
	current, ok := b.c.Auth.AccessToken()
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	token, found := b.sessions[chatID]
	return found && subtle.ConstantTimeCompare([]byte(token), []byte(current)) == 1
}

// forgetSessions закрывает доступ всем чатам и возвращает тех, кто был в сессии
func (b *Bot) forgetSessions() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	chats := make([]int64, 0, len(b.sessions))
	for id := range b.sessions {
		chats = append(chats, id)
	}
	clear(b.sessions)
	return chats
}

// broadcastSessionExpired сообщает вошедшим чатам, что сессия закрыта бэкендом
func (b *Bot) broadcastSessionExpired() {
	for _, id := range b.forgetSessions() {
		b.sendMessage(id, msgSessionExpired)
	}
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: bad status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		logger.Error("Telegram", "Send message: %v", err)
	}
}
