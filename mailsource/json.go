package mailsource

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/poiesic/mailkb/core"
)

// ReadJSON decodes emails from r and calls fn for each. The input is either
// a single JSON array of emails or a stream of email objects (such as JSON
// Lines). Decoding stops at the first malformed email.
func ReadJSON(ctx context.Context, r io.Reader, fn func(*core.EmailContent) error, opts ...Option) error {
	o := buildOptions(opts)
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read json: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("read json array: %w", err)
		}
	}

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if first == '[' && !dec.More() {
			break
		}

		var content core.EmailContent
		if err := dec.Decode(&content); err != nil {
			if first != '[' && errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("email %d: %w", idx, err)
		}
		if content.FolderName == "" {
			content.FolderName = o.folderName
		}
		if err := fn(&content); err != nil {
			return err
		}
	}

	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return fmt.Errorf("read json array end: %w", err)
		}
	}
	return nil
}

// peekNonSpace skips leading whitespace and returns the next byte without
// consuming it.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
