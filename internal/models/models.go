package models

// Inbound is one user message as seen by the dispatch pipeline.
// The transport layer fills it in; everything downstream treats it as read-only.
type Inbound struct {
	ChatID    int64
	MessageID int
	Text      string
	// PhotoFileID references the largest photo size attached to the
	// message, empty for text messages.
	PhotoFileID string
	// PhotoByteSize is the byte size Telegram declares for that photo,
	// zero when unknown.
	PhotoByteSize int64
}

// HasPhoto reports whether the message carries a photo attachment.
func (m Inbound) HasPhoto() bool {
	return m.PhotoFileID != ""
}

// AnalysisResult is the normalized record produced from the analysis
// service's response. Every field except Name is optional; Name is
// filled with a placeholder when the service returns none.
type AnalysisResult struct {
	Name         string
	Price        *float64
	Currency     string
	Size         string
	ImagePreview string
	SourceLink   string
}
