package bot

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/wishcard-bot/internal/classifier"
	"github.com/xaenox/wishcard-bot/internal/gateway"
	"github.com/xaenox/wishcard-bot/internal/models"
	"github.com/xaenox/wishcard-bot/internal/payload"
	"github.com/xaenox/wishcard-bot/internal/ratelimit"
	"go.uber.org/zap"
)

// User-facing replies. The underlying error is logged, never shown.
const (
	replyHelp = "Отправь фото, ссылку или напиши «хочу ...» — я помогу создать карточку! 📸🔗📝"

	replyWelcome = "Привет! 👋\n\n" +
		"Отправь фото, ссылку или текст «хочу ...» — я помогу создать карточку желания.\n\n" +
		"📸 Фото — анализ изображения\n" +
		"🔗 Ссылка — анализ страницы товара\n" +
		"📝 «Хочу ...» — карточка из текста"

	replyRateLimited = "Слишком много запросов. Подожди минуту и попробуй ещё раз."
	replyUnavailable = "Сервис временно недоступен. Попробуй позже."
	replyTooLarge    = "Фото слишком большое. Отправь изображение поменьше."
	replyPhotoFail   = "Не удалось проанализировать фото. Попробуй ещё раз."
	replyTextFail    = "Не удалось проанализировать текст. Попробуй ещё раз."
	replyLinkFail    = "Не удалось проанализировать ссылку. Попробуй ещё раз."
	replyCardReady   = "Нажми кнопку ниже, чтобы создать карточку 👇"

	buttonPhotoCard = "📸 Создать карточку"
	buttonTextCard  = "📝 Создать карточку"
	buttonLinkCard  = "🔗 Создать карточку"
)

// Analyzer is the slice of the gateway the dispatcher depends on.
type Analyzer interface {
	Enabled() bool
	AnalyzeImage(ctx context.Context, data []byte) (models.AnalysisResult, error)
	AnalyzeText(ctx context.Context, text string) (models.AnalysisResult, error)
	AnalyzeLink(ctx context.Context, rawURL string) (models.AnalysisResult, error)
}

// FileSource fetches photo bytes from the platform's file endpoint.
type FileSource interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Reply is the outbound action a dispatch produces: text plus, on success,
// one web-app button carrying the deep link.
type Reply struct {
	Text        string
	ButtonLabel string
	ButtonURL   string
}

// HasButton reports whether the reply carries a deep-link button.
func (r Reply) HasButton() bool {
	return r.ButtonURL != ""
}

// Options are the dispatch tunables that come from configuration.
type Options struct {
	WebAppURL     string
	ImageTimeout  time.Duration
	TextTimeout   time.Duration
	LinkTimeout   time.Duration
	MaxImageBytes int64
}

// Dispatcher runs one message through rate check, classification, analysis,
// and encoding, and turns the outcome into a Reply. Dispatches are
// independent; the limiter is the only state shared between them.
type Dispatcher struct {
	limiter    *ratelimit.Limiter
	classifier *classifier.Classifier
	analyzer   Analyzer
	files      FileSource
	opts       Options
	logger     *zap.Logger
}

func NewDispatcher(limiter *ratelimit.Limiter, clf *classifier.Classifier, analyzer Analyzer, files FileSource, opts Options, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		limiter:    limiter,
		classifier: clf,
		analyzer:   analyzer,
		files:      files,
		opts:       opts,
		logger:     logger,
	}
}

// Dispatch handles one inbound message end to end and always produces a
// Reply; failures come back as user-facing text, not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, msg models.Inbound) Reply {
	log := d.logger.With(
		zap.String("dispatch_id", uuid.New().String()),
		zap.Int64("chat_id", msg.ChatID))

	if !d.limiter.Admit(msg.ChatID, time.Now()) {
		log.Info("Rate limit exceeded")
		return Reply{Text: replyRateLimited}
	}

	intent := d.classifier.Classify(msg)
	log.Info("Message classified", zap.Stringer("intent", intent))

	switch intent {
	case classifier.IntentPhoto:
		return d.dispatchPhoto(ctx, log, msg)
	case classifier.IntentWishText:
		return d.dispatchWishText(ctx, log, msg)
	case classifier.IntentLink:
		return d.dispatchLink(ctx, log, msg)
	default:
		return Reply{Text: replyHelp}
	}
}

func (d *Dispatcher) dispatchPhoto(ctx context.Context, log *zap.Logger, msg models.Inbound) Reply {
	if !d.analyzer.Enabled() {
		return Reply{Text: replyUnavailable}
	}

	// Telegram reports the file size up front; an obviously oversized photo
	// is refused without downloading anything.
	if d.opts.MaxImageBytes > 0 && msg.PhotoByteSize > d.opts.MaxImageBytes {
		log.Info("Photo rejected by size cap",
			zap.Int64("size", msg.PhotoByteSize),
			zap.Int64("limit", d.opts.MaxImageBytes))
		return Reply{Text: replyTooLarge}
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.ImageTimeout)
	defer cancel()

	data, err := d.files.Download(ctx, msg.PhotoFileID)
	if err != nil {
		log.Error("Failed to download photo", zap.Error(err))
		return Reply{Text: replyPhotoFail}
	}

	result, err := d.analyzer.AnalyzeImage(ctx, data)
	if err != nil {
		var tooLarge *gateway.TooLargeError
		if errors.As(err, &tooLarge) {
			log.Info("Photo rejected by size cap",
				zap.Int64("size", tooLarge.Size),
				zap.Int64("limit", tooLarge.Limit))
			return Reply{Text: replyTooLarge}
		}
		log.Error("Image analysis failed", zap.Error(err))
		return Reply{Text: replyPhotoFail}
	}

	return d.cardReply(log, payload.KindImage, buttonPhotoCard, replyPhotoFail, result)
}

func (d *Dispatcher) dispatchWishText(ctx context.Context, log *zap.Logger, msg models.Inbound) Reply {
	if !d.analyzer.Enabled() {
		return Reply{Text: replyUnavailable}
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.TextTimeout)
	defer cancel()

	result, err := d.analyzer.AnalyzeText(ctx, trimmed(msg))
	if err != nil {
		log.Error("Text analysis failed", zap.Error(err))
		return Reply{Text: replyTextFail}
	}

	return d.cardReply(log, payload.KindText, buttonTextCard, replyTextFail, result)
}

func (d *Dispatcher) dispatchLink(ctx context.Context, log *zap.Logger, msg models.Inbound) Reply {
	if !d.analyzer.Enabled() {
		return Reply{Text: replyUnavailable}
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.LinkTimeout)
	defer cancel()

	result, err := d.analyzer.AnalyzeLink(ctx, trimmed(msg))
	if err != nil {
		log.Error("Link analysis failed", zap.Error(err))
		return Reply{Text: replyLinkFail}
	}

	return d.cardReply(log, payload.KindLink, buttonLinkCard, replyLinkFail, result)
}

// cardReply encodes the result and builds the success reply. Encoding only
// fails on an invalid kind, which would be a programming error; the message
// is then answered with the intent's failure text.
func (d *Dispatcher) cardReply(log *zap.Logger, kind payload.Kind, label, failText string, result models.AnalysisResult) Reply {
	token, err := payload.Encode(kind, result)
	if err != nil {
		log.Error("Failed to encode payload", zap.Error(err))
		return Reply{Text: failText}
	}

	return Reply{
		Text:        replyCardReady,
		ButtonLabel: label,
		ButtonURL:   d.opts.WebAppURL + "#tgWebAppStartParam=" + url.QueryEscape(token),
	}
}

func trimmed(msg models.Inbound) string {
	return strings.TrimSpace(msg.Text)
}
