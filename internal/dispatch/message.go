// internal/dispatch/message.go
package dispatch

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"

	"batch-mailer/internal/common/errors"

	"github.com/google/uuid"
)

// BuildMessage renders msg as a plain-text RFC 5322 message from the sender.
func BuildMessage(from string, msg RenderedMessage, now time.Time) ([]byte, error) {
	if strings.ContainsAny(from, "\r\n") || strings.ContainsAny(msg.To, "\r\n") {
		return nil, errors.NewMessageBuildFailedError("address contains a line break")
	}

	var builder bytes.Buffer

	// Headers
	builder.WriteString(fmt.Sprintf("From: %s\r\n", from))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerSafe(msg.Subject))))
	builder.WriteString(fmt.Sprintf("Date: %s\r\n", now.Format(time.RFC1123Z)))
	builder.WriteString(fmt.Sprintf("Message-ID: %s\r\n", generateMessageID(from)))

	// MIME headers
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	builder.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	builder.WriteString("\r\n")

	// Body
	qp := quotedprintable.NewWriter(&builder)
	if _, err := qp.Write([]byte(msg.Body)); err != nil {
		return nil, errors.NewMessageBuildFailedError(err.Error())
	}
	if err := qp.Close(); err != nil {
		return nil, errors.NewMessageBuildFailedError(err.Error())
	}

	return builder.Bytes(), nil
}

func generateMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// headerSafe folds a subject onto one line.
func headerSafe(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
