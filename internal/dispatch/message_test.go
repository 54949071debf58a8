package dispatch

import (
	"bytes"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"testing"
	"time"

	"batch-mailer/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	raw, err := BuildMessage("me@sender.test", RenderedMessage{
		Subject: "Application for Engineer in Zürich",
		Body:    "\nDear team,\n\nRegards",
		To:      "hr@acme.test",
	}, now)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "me@sender.test", msg.Header.Get("From"))
	assert.Equal(t, "hr@acme.test", msg.Header.Get("To"))
	assert.Equal(t, "1.0", msg.Header.Get("MIME-Version"))
	assert.Equal(t, "text/plain; charset=UTF-8", msg.Header.Get("Content-Type"))
	assert.Equal(t, "quoted-printable", msg.Header.Get("Content-Transfer-Encoding"))
	assert.Regexp(t, `^<[0-9a-f-]{36}@sender\.test>$`, msg.Header.Get("Message-ID"))

	date, err := msg.Header.Date()
	require.NoError(t, err)
	assert.True(t, now.Equal(date))

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Application for Engineer in Zürich", subject)

	body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
	require.NoError(t, err)
	assert.Equal(t, "\r\nDear team,\r\n\r\nRegards", string(body))
}

func TestBuildMessage_FoldsSubject(t *testing.T) {
	raw, err := BuildMessage("me@sender.test", RenderedMessage{Subject: "two\r\nlines", To: "a@b.c"}, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: two lines\r\n")
}

func TestBuildMessage_RejectsHeaderInjection(t *testing.T) {
	_, err := BuildMessage("me@sender.test", RenderedMessage{To: "a@b.c\r\nBcc: x@y.z"}, time.Now())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMessageBuildFailed))
}

func TestGenerateMessageID(t *testing.T) {
	assert.True(t, strings.HasSuffix(generateMessageID("a@example.com"), "@example.com>"))
	assert.True(t, strings.HasSuffix(generateMessageID("no-domain"), "@localhost>"))
	assert.NotEqual(t, generateMessageID("a@b.c"), generateMessageID("a@b.c"))
}
