// internal/dispatch/preview.go
package dispatch

import (
	"context"

	"batch-mailer/internal/common/logger"
)

const previewReason = "preview"

// PreviewSession stands in for a Session when a run only previews its
// messages. Nothing is sent.
type PreviewSession struct {
	logger logger.Logger
}

func NewPreviewSession(log logger.Logger) *PreviewSession {
	return &PreviewSession{logger: log}
}

func (p *PreviewSession) Open(context.Context) error {
	return nil
}

func (p *PreviewSession) Send(_ context.Context, msg RenderedMessage) SendOutcome {
	p.logger.Info("preview message", map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Body,
	})
	return SendOutcome{
		Recipient: msg.To,
		Status:    OutcomeSkipped,
		Reason:    previewReason,
	}
}

func (p *PreviewSession) Close() {}
