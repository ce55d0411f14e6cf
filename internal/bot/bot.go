package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/wishcard-bot/internal/classifier"
	"github.com/xaenox/wishcard-bot/internal/models"
	"github.com/xaenox/wishcard-bot/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Bot owns the Telegram transport: the long-poll loop, command handling,
// and sending replies. Everything between receiving a message and knowing
// what to answer lives in the Dispatcher.
type Bot struct {
	api        *tgbotapi.BotAPI
	dispatcher *Dispatcher
	sem        *semaphore.Weighted
	logger     *zap.Logger
}

func New(token string, limiter *ratelimit.Limiter, clf *classifier.Classifier, analyzer Analyzer, opts Options, downloadTimeout time.Duration, maxConcurrent int64, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}

	// The photo downloader needs the bot token, so it is built here and
	// handed to the dispatcher. maxBytes caps the read; anything past the
	// cap is left for the gateway's size check to reject.
	files := &telegramFiles{
		api:      api,
		http:     &http.Client{Timeout: downloadTimeout},
		maxBytes: opts.MaxImageBytes,
	}

	return &Bot{
		api:        api,
		dispatcher: NewDispatcher(limiter, clf, analyzer, files, opts, logger),
		sem:        semaphore.NewWeighted(maxConcurrent),
		logger:     logger,
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	ctx := context.Background()
	for update := range updates {
		if update.Message == nil {
			continue
		}

		message := update.Message
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer b.sem.Release(1)
			b.handleMessage(message)
		}()
	}

	return nil
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Handle commands
	if message.IsCommand() {
		b.handleCommand(message)
		return
	}

	reply := b.dispatcher.Dispatch(context.Background(), inboundFrom(message))
	b.sendReply(message, reply)
}

func (b *Bot) handleCommand(message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.sendReply(message, Reply{Text: replyWelcome})
	case "help":
		b.sendReply(message, Reply{Text: replyHelp})
	default:
		b.sendReply(message, Reply{Text: replyHelp})
	}
}

// inboundFrom flattens a Telegram message into the dispatch record. For a
// photo, Telegram lists the available sizes smallest first; the analysis
// works best on the largest one.
func inboundFrom(message *tgbotapi.Message) models.Inbound {
	inbound := models.Inbound{
		ChatID:    message.Chat.ID,
		MessageID: message.MessageID,
		Text:      message.Text,
	}
	if message.Caption != "" {
		inbound.Text = message.Caption
	}
	if len(message.Photo) > 0 {
		largest := message.Photo[len(message.Photo)-1]
		inbound.PhotoFileID = largest.FileID
		inbound.PhotoByteSize = int64(largest.FileSize)
	}
	return inbound
}

func (b *Bot) sendReply(message *tgbotapi.Message, reply Reply) {
	msg := tgbotapi.NewMessage(message.Chat.ID, reply.Text)
	msg.ReplyToMessageID = message.MessageID

	if reply.HasButton() {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.InlineKeyboardButton{
					Text:   reply.ButtonLabel,
					WebApp: &tgbotapi.WebAppInfo{URL: reply.ButtonURL},
				},
			),
		)
	}

	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

// telegramFiles resolves a file id to its direct download URL and fetches
// the bytes through the platform's file endpoint.
type telegramFiles struct {
	api      *tgbotapi.BotAPI
	http     *http.Client
	maxBytes int64
}

func (t *telegramFiles) Download(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := t.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	// Read one byte past the cap so the gateway's size check still fires
	// on oversized files instead of silently truncating them.
	limit := t.maxBytes
	if limit <= 0 {
		limit = 20 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	return data, nil
}
