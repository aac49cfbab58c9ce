package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	app "saliency-heatmap/internal/application"
	"saliency-heatmap/internal/domain/entity"
)

const (
	msgStart = `👋 Привет! Я строю тепловую карту заметности изображения.

📸 Отправьте фото или файл PNG/JPG, и я верну карту: красным отмечено то, что привлекает внимание.

📋 Команды:
/help — справка`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте фото или картинку файлом (PNG, JPG)
2️⃣ Бот посчитает карту заметности
3️⃣ Вы получите изображение той же формы в палитре jet

💡 Синий — фон, красный — самые заметные области.
Лимит размера файла: %d МБ.`

	msgSendPhoto       = "📸 Пожалуйста, отправьте фото или файл PNG/JPG."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgInvalidType     = "⚠️ Неподдерживаемый формат. Используйте PNG или JPG."
	msgTooLarge        = "⚠️ Файл слишком большой (максимум %d МБ)."
	msgImageTooLarge   = "⚠️ Слишком большое разрешение (максимум %d Мп)."
	msgDecodeError     = "⚠️ Не удалось прочитать изображение."
	msgProcessingError = "⚠️ Не удалось построить карту заметности. Попробуйте другое изображение."
	msgTimeout         = "⏳ Обработка заняла слишком много времени. Попробуйте изображение поменьше."
	msgHeatmapCaption  = "🔥 Карта заметности"
)

// Bot Telegram-интерфейс сервиса анализа
type Bot struct {
	api *tgbotapi.BotAPI
	svc *app.AnalysisService
}

// NewBot создаёт нового бота
func NewBot(token string, svc *app.AnalysisService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Info().Str("account", api.Self.UserName).Msg("telegram bot authorized")

	return &Bot{
		api: api,
		svc: svc,
	}, nil
}

// Run обрабатывает сообщения до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
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
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	upload, ok := uploadOf(msg)
	if !ok {
		b.sendMessage(msg.Chat.ID, msgSendPhoto)
		return
	}
	b.handleUpload(ctx, msg.Chat.ID, upload)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMessage(msg.Chat.ID, msgStart)
	case "help":
		b.sendMessage(msg.Chat.ID, fmt.Sprintf(msgHelp, b.svc.Options().MaxFileSizeMB))
	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
	}
}

// tgUpload файл из сообщения
type tgUpload struct {
	FileID   string
	FileName string
	Size     int
}

// uploadOf достаёт файл из сообщения: фото максимального размера или документ
func uploadOf(msg *tgbotapi.Message) (tgUpload, bool) {
	if len(msg.Photo) > 0 {
		// Telegram всегда перекодирует фото в JPEG
		photo := msg.Photo[len(msg.Photo)-1]
		return tgUpload{FileID: photo.FileID, FileName: "photo.jpg", Size: photo.FileSize}, true
	}
	if msg.Document != nil {
		return tgUpload{FileID: msg.Document.FileID, FileName: msg.Document.FileName, Size: msg.Document.FileSize}, true
	}
	return tgUpload{}, false
}

// handleUpload прогоняет файл через сервис анализа и отправляет результат
func (b *Bot) handleUpload(ctx context.Context, chatID int64, upload tgUpload) {
	logger := log.With().Int64("chat_id", chatID).Str("filename", upload.FileName).Logger()
	ctx = logger.WithContext(ctx)

	// Расширение и заявленный размер проверяем до скачивания
	if err := b.svc.CheckExtension(upload.FileName); err != nil {
		b.sendMessage(chatID, b.replyFor(err))
		return
	}
	opts := b.svc.Options()
	if int64(upload.Size) > opts.MaxFileSizeBytes() {
		b.sendMessage(chatID, b.replyFor(entity.ErrFileTooLarge(opts.MaxFileSizeMB)))
		return
	}

	body, err := b.openFile(ctx, upload.FileID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to download file")
		b.sendMessage(chatID, msgProcessingError)
		return
	}
	defer body.Close()

	heatmap, err := b.svc.Analyze(ctx, upload.FileName, body)
	if err != nil {
		b.sendMessage(chatID, b.replyFor(err))
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "heatmap.png", Bytes: heatmap})
	photo.Caption = msgHeatmapCaption
	if _, err := b.api.Send(photo); err != nil {
		logger.Error().Err(err).Msg("failed to send heatmap")
	}
}

// replyFor переводит ошибку анализа в текст для пользователя
func (b *Bot) replyFor(err error) string {
	ae, ok := entity.AsAnalysisError(err)
	if !ok {
		return msgProcessingError
	}
	switch ae.Kind {
	case entity.KindInvalidFileType:
		return msgInvalidType
	case entity.KindFileTooLarge:
		return fmt.Sprintf(msgTooLarge, b.svc.Options().MaxFileSizeMB)
	case entity.KindImageTooLarge:
		return fmt.Sprintf(msgImageTooLarge, b.svc.Options().MaxPixels/1_000_000)
	case entity.KindDecode:
		return msgDecodeError
	case entity.KindTimeout:
		return msgTimeout
	default:
		return msgProcessingError
	}
}

// openFile открывает поток скачивания файла из Telegram
func (b *Bot) openFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.api.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}
