// Package payload implements the start-parameter wire format shared with the
// wish-card web app. The two processes deploy independently and agree only on
// this encoding, so both directions must stay bit-exact.
package payload

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xaenox/wishcard-bot/internal/models"
)

// Kind tags the token with the flow that produced it.
type Kind string

const (
	KindImage Kind = "img"
	KindText  Kind = "text"
	KindLink  Kind = "link"
)

// Field caps applied before encoding. Telegram bounds the whole deep link,
// so long fields are cut here rather than risking an unusable URL.
const (
	MaxNameRunes  = 80
	MaxLinkRunes  = 500
	MaxImageRunes = 2000
)

// Card is the abbreviated-key projection of an analysis result. Key names
// are single letters to keep the token short against the platform's
// start-parameter limit; the web app decodes the same schema.
type Card struct {
	Name     string   `json:"n"`
	Price    *float64 `json:"p,omitempty"`
	Currency string   `json:"c,omitempty"`
	Size     string   `json:"s,omitempty"`
	Image    string   `json:"i,omitempty"`
	Link     string   `json:"l,omitempty"`
}

// DecodeError reports a malformed or tampered token.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode payload: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode payload: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode projects the result into a Card, applies the field caps, and packs
// it as "<kind>_<base64url(JSON)>" with no padding. Encoding loses data only
// through the explicit truncation step.
func Encode(kind Kind, r models.AnalysisResult) (string, error) {
	switch kind {
	case KindImage, KindText, KindLink:
	default:
		return "", fmt.Errorf("encode payload: unknown kind %q", kind)
	}

	card := Card{
		Name:     truncateRunes(r.Name, MaxNameRunes),
		Price:    r.Price,
		Currency: r.Currency,
		Size:     r.Size,
		Image:    truncateRunes(r.ImagePreview, MaxImageRunes),
		Link:     truncateRunes(r.SourceLink, MaxLinkRunes),
	}

	data, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(kind) + "_" + base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode is the strict inverse of Encode for any token Encode produced.
// Anything else fails with *DecodeError.
func Decode(token string) (Kind, Card, error) {
	prefix, rest, found := strings.Cut(token, "_")
	if !found {
		return "", Card{}, &DecodeError{Reason: "missing kind separator"}
	}

	kind := Kind(prefix)
	switch kind {
	case KindImage, KindText, KindLink:
	default:
		return "", Card{}, &DecodeError{Reason: fmt.Sprintf("unknown kind %q", prefix)}
	}

	data, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil {
		return "", Card{}, &DecodeError{Reason: "invalid base64 token", Err: err}
	}

	var card Card
	if err := json.Unmarshal(data, &card); err != nil {
		return "", Card{}, &DecodeError{Reason: "invalid card JSON", Err: err}
	}
	return kind, card, nil
}

// truncateRunes cuts s to at most n runes, never splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
