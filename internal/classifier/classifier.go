package classifier

import (
	"regexp"
	"strings"

	"github.com/xaenox/wishcard-bot/internal/models"
)

// Intent is what the user is asking the bot to do with a message.
type Intent int

const (
	// IntentFallback is the default branch: anything we cannot act on.
	IntentFallback Intent = iota
	// IntentPhoto is a message carrying a photo to analyze.
	IntentPhoto
	// IntentWishText is free text starting with a wish trigger ("хочу ...").
	IntentWishText
	// IntentLink is a bare product-page URL.
	IntentLink
)

func (i Intent) String() string {
	switch i {
	case IntentPhoto:
		return "photo"
	case IntentWishText:
		return "wish_text"
	case IntentLink:
		return "link"
	default:
		return "fallback"
	}
}

// urlPattern matches a whole trimmed message that is a single http(s) URL.
// The scheme is matched case-sensitively on purpose: Telegram clients do not
// upcase pasted links, and the scraper expects lowercase schemes.
var urlPattern = regexp.MustCompile(`^https?://\S+$`)

// DefaultTriggers are the wish prefixes recognized out of the box.
var DefaultTriggers = []string{"хочу", "i wish"}

// Classifier maps an inbound message to an Intent. It is a pure decision
// table: no I/O, never fails, same input always yields the same intent.
type Classifier struct {
	triggers []string
}

func New(triggers []string) *Classifier {
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}
	lowered := make([]string, len(triggers))
	for i, t := range triggers {
		lowered[i] = strings.ToLower(t)
	}
	return &Classifier{triggers: lowered}
}

// Classify applies the precedence rules: photo beats wish text beats link;
// everything else, including empty text, falls through to IntentFallback.
func (c *Classifier) Classify(msg models.Inbound) Intent {
	if msg.HasPhoto() {
		return IntentPhoto
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return IntentFallback
	}

	lowered := strings.ToLower(text)
	for _, trigger := range c.triggers {
		if strings.HasPrefix(lowered, trigger) {
			return IntentWishText
		}
	}

	if urlPattern.MatchString(text) {
		return IntentLink
	}

	return IntentFallback
}
