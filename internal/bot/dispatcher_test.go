package bot

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/wishcard-bot/internal/classifier"
	"github.com/xaenox/wishcard-bot/internal/gateway"
	"github.com/xaenox/wishcard-bot/internal/models"
	"github.com/xaenox/wishcard-bot/internal/payload"
	"github.com/xaenox/wishcard-bot/internal/ratelimit"
	"go.uber.org/zap"
)

type fakeAnalyzer struct {
	disabled bool
	result   models.AnalysisResult
	err      error

	imageCalls int
	textCalls  int
	linkCalls  int
	gotImage   []byte
	gotText    string
	gotURL     string
}

func (f *fakeAnalyzer) Enabled() bool { return !f.disabled }

func (f *fakeAnalyzer) AnalyzeImage(_ context.Context, data []byte) (models.AnalysisResult, error) {
	f.imageCalls++
	f.gotImage = data
	return f.result, f.err
}

func (f *fakeAnalyzer) AnalyzeText(_ context.Context, text string) (models.AnalysisResult, error) {
	f.textCalls++
	f.gotText = text
	return f.result, f.err
}

func (f *fakeAnalyzer) AnalyzeLink(_ context.Context, rawURL string) (models.AnalysisResult, error) {
	f.linkCalls++
	f.gotURL = rawURL
	return f.result, f.err
}

func (f *fakeAnalyzer) calls() int { return f.imageCalls + f.textCalls + f.linkCalls }

type fakeFiles struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFiles) Download(context.Context, string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

const testWebApp = "https://wishes.example"

func newTestDispatcher(analyzer Analyzer, files FileSource, limit int) *Dispatcher {
	return NewDispatcher(
		ratelimit.New(time.Minute, limit),
		classifier.New(nil),
		analyzer,
		files,
		Options{
			WebAppURL:     testWebApp,
			ImageTimeout:  time.Second,
			TextTimeout:   time.Second,
			LinkTimeout:   time.Second,
			MaxImageBytes: 5 * 1024 * 1024,
		},
		zap.NewNop(),
	)
}

// decodeButton extracts and decodes the start parameter from a reply's
// deep-link URL.
func decodeButton(t *testing.T, reply Reply) (payload.Kind, payload.Card) {
	t.Helper()
	require.True(t, reply.HasButton())

	prefix := testWebApp + "#tgWebAppStartParam="
	require.True(t, strings.HasPrefix(reply.ButtonURL, prefix), "unexpected deep link %q", reply.ButtonURL)

	token, err := url.QueryUnescape(strings.TrimPrefix(reply.ButtonURL, prefix))
	require.NoError(t, err)

	kind, card, err := payload.Decode(token)
	require.NoError(t, err)
	return kind, card
}

func TestDispatchWishText(t *testing.T) {
	price := 50.0
	analyzer := &fakeAnalyzer{result: models.AnalysisResult{
		Name:     "Рюкзак",
		Price:    &price,
		Currency: "USD",
	}}
	d := newTestDispatcher(analyzer, &fakeFiles{}, 12)

	reply := d.Dispatch(context.Background(), models.Inbound{ChatID: 1, Text: "хочу новый рюкзак"})

	assert.Equal(t, 1, analyzer.textCalls)
	assert.Equal(t, "хочу новый рюкзак", analyzer.gotText)
	assert.Equal(t, replyCardReady, reply.Text)
	assert.Equal(t, buttonTextCard, reply.ButtonLabel)

	kind, card := decodeButton(t, reply)
	assert.Equal(t, payload.KindText, kind)
	assert.Equal(t, "Рюкзак", card.Name)
	require.NotNil(t, card.Price)
	assert.Equal(t, 50.0, *card.Price)
	assert.Equal(t, "USD", card.Currency)
	assert.Empty(t, card.Size)
}

func TestDispatchLink(t *testing.T) {
	analyzer := &fakeAnalyzer{result: models.AnalysisResult{
		Name:       "Товар",
		SourceLink: "https://example.com/item/123",
	}}
	d := newTestDispatcher(analyzer, &fakeFiles{}, 12)

	reply := d.Dispatch(context.Background(), models.Inbound{ChatID: 1, Text: "https://example.com/item/123"})

	assert.Equal(t, 1, analyzer.linkCalls)
	assert.Equal(t, "https://example.com/item/123", analyzer.gotURL)

	kind, card := decodeButton(t, reply)
	assert.Equal(t, payload.KindLink, kind)
	assert.Equal(t, "https://example.com/item/123", card.Link)
}

func TestDispatchLinkUpstreamFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &gateway.UpstreamError{Op: "analyze-link", Err: context.DeadlineExceeded}}
	d := newTestDispatcher(analyzer, &fakeFiles{}, 12)

	reply := d.Dispatch(context.Background(), models.Inbound{ChatID: 1, Text: "https://example.com/item/123"})

	assert.Equal(t, replyLinkFail, reply.Text)
	assert.False(t, reply.HasButton(), "failure replies must not carry a deep link")
}

func TestDispatchPhoto(t *testing.T) {
	analyzer := &fakeAnalyzer{result: models.AnalysisResult{Name: "Кроссовки"}}
	files := &fakeFiles{data: []byte{0xFF, 0xD8}}
	d := newTestDispatcher(analyzer, files, 12)

	reply := d.Dispatch(context.Background(), models.Inbound{ChatID: 1, PhotoFileID: "file-1", PhotoByteSize: 1024})

	assert.Equal(t, 1, files.calls)
	assert.Equal(t, []byte{0xFF, 0xD8}, analyzer.gotImage)

	kind, card := decodeButton(t, reply)
	assert.Equal(t, payload.KindImage, kind)
	assert.Equal(t, "Кроссовки", card.Name)
}

func TestDispatchPhotoDeclaredTooLarge(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	files := &fakeFiles{}
	d := newTestDispatcher(analyzer, files, 12)

	reply := d.Dispatch(context.Background(), models.Inbound{
		ChatID:        1,
		PhotoFileID:   "file-1",
		PhotoByteSize: 6 * 1024 * 1024,
	})

	assert.Equal(t, replyTooLarge, reply.Text)
	assert.Equal(t, 0, files.calls, "oversized photo must not be downloaded")
	assert.Equal(t, 0, analyzer.calls(), "oversized photo must not reach the gateway")
}

func TestDispatchPhotoGatewayTooLarge(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &gateway.TooLargeError{Size: 6 << 20, Limit: 5 << 20}}
	files := &fakeFiles{data: []byte{1}}
	d := newTestDispatcher(analyzer, files, 12)

	reply := d.Dispatch(context.Background(), models.Inbound{ChatID: 1, PhotoFileID: "file-1"})
	assert.Equal(t, replyTooLarge, reply.Text)
}

func TestDispatchPhotoDownloadFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	files := &fakeFiles{err: errors.New("file endpoint unreachable")}
	d := newTestDispatcher(analyzer, files, 12)

	reply := d.Dispatch(context.Background(), models.Inbound{ChatID: 1, PhotoFileID: "file-1"})

	assert.Equal(t, replyPhotoFail, reply.Text)
	assert.Equal(t, 0, analyzer.calls())
}

func TestDispatchFallback(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	d := newTestDispatcher(analyzer, &fakeFiles{}, 12)

	reply := d.Dispatch(context.Background(), models.Inbound{ChatID: 1, Text: "привет"})

	assert.Equal(t, replyHelp, reply.Text)
	assert.Equal(t, 0, analyzer.calls())
}

func TestDispatchRateLimited(t *testing.T) {
	analyzer := &fakeAnalyzer{result: models.AnalysisResult{Name: "Желание"}}
	d := newTestDispatcher(analyzer, &fakeFiles{}, 12)

	msg := models.Inbound{ChatID: 99, Text: "хочу кофе"}
	for i := 0; i < 12; i++ {
		reply := d.Dispatch(context.Background(), msg)
		assert.Equal(t, replyCardReady, reply.Text, "message %d should pass", i+1)
	}

	reply := d.Dispatch(context.Background(), msg)
	assert.Equal(t, replyRateLimited, reply.Text)
	assert.Equal(t, 12, analyzer.calls(), "denied message must not reach the gateway")
}

func TestDispatchServiceUnavailable(t *testing.T) {
	analyzer := &fakeAnalyzer{disabled: true}
	d := newTestDispatcher(analyzer, &fakeFiles{}, 12)

	for _, text := range []string{"хочу кофе", "https://example.com/item"} {
		reply := d.Dispatch(context.Background(), models.Inbound{ChatID: 1, Text: text})
		assert.Equal(t, replyUnavailable, reply.Text)
	}
	assert.Equal(t, 0, analyzer.calls())
}
