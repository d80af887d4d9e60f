package mailsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/poiesic/mailkb/core"
)

// ReadMbox parses the messages of an mbox archive and calls fn for each.
// Messages that cannot be parsed are logged and skipped. Emails are keyed
// by Message-ID, or by a fingerprint of the raw message when it has none.
func ReadMbox(ctx context.Context, r io.Reader, fn func(*core.EmailContent) error, opts ...Option) error {
	o := buildOptions(opts)
	reader := mboxlib.NewReader(r)

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		content, err := parseMessage(raw)
		if err != nil {
			o.logger.Warn("skipping unparseable mbox message", "index", idx, "err", err)
			continue
		}
		if content.FolderName == "" {
			content.FolderName = o.folderName
		}
		if err := fn(content); err != nil {
			return err
		}
	}
}

// parseMessage converts one RFC 5322 message into an EmailContent.
func parseMessage(raw []byte) (*core.EmailContent, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}
	defer mr.Close()

	h := mr.Header
	content := &core.EmailContent{Importance: core.DefaultImportance}

	content.InternetMessageID, _ = h.MessageID()
	content.ID = content.InternetMessageID
	if content.ID == "" {
		content.ID = "mbox-" + core.ContentHash(string(raw))
	}
	content.Subject, _ = h.Subject()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		content.SenderName = from[0].Name
		content.SenderAddress = from[0].Address
	}
	content.Recipients = addresses(h, "To")
	content.CcRecipients = addresses(h, "Cc")
	if date, err := h.Date(); err == nil && !date.IsZero() {
		content.ReceivedAt = date.UTC().Truncate(time.Second)
	}
	if importance := strings.ToLower(strings.TrimSpace(h.Get("Importance"))); importance != "" {
		content.Importance = importance
	}

	var plain, html []string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, err
		}
		if part == nil {
			continue
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := ph.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read body part: %w", err)
			}
			switch mediaType {
			case "text/html":
				html = append(html, string(body))
			case "", "text/plain":
				plain = append(plain, string(body))
			}
		case *mail.AttachmentHeader:
			attachment, err := readAttachment(ph, part.Body, len(content.Attachments))
			if err != nil {
				return nil, err
			}
			content.Attachments = append(content.Attachments, attachment)
		}
	}

	switch {
	case len(plain) > 0:
		content.Body = strings.TrimSpace(strings.Join(plain, "\n\n"))
	case len(html) > 0:
		content.Body = strings.TrimSpace(strings.Join(html, "\n"))
		content.IsHTML = true
	}
	return content, nil
}

// readAttachment records an attachment's metadata. Text attachments keep
// their text; anything else gets a placeholder.
func readAttachment(h *mail.AttachmentHeader, body io.Reader, idx int) (core.Attachment, error) {
	name, _ := h.Filename()
	if name == "" {
		name = fmt.Sprintf("attachment-%d", idx+1)
	}
	mediaType, _, _ := h.ContentType()
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("read attachment %s: %w", name, err)
	}

	attachment := core.Attachment{
		ID:          fmt.Sprintf("att-%d", idx+1),
		Name:        name,
		ContentType: mediaType,
		Size:        int64(len(data)),
	}
	if strings.HasPrefix(mediaType, "text/") {
		attachment.Text = string(data)
	} else {
		attachment.Text = fmt.Sprintf("[Attachment not extracted: %s (%s)]", name, mediaType)
	}
	return attachment, nil
}

func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Address
	}
	return out
}
