package mailsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/mailkb/core"
)

// ErrUnknownFormat is returned for a file whose format cannot be inferred.
var ErrUnknownFormat = errors.New("unknown mail file format")

// Format is a mail file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatMbox Format = "mbox"
)

// Option configures a reader.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	folderName string
}

// WithLogger sets the logger used to report skipped messages.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFolderName sets FolderName on emails that do not carry one.
func WithFolderName(name string) Option {
	return func(o *options) {
		o.folderName = name
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "mailsource")
	return o
}

// DetectFormat infers a file's format from its extension. .json and
// .jsonl are JSON; .mbox, .mbx and files without an extension are mbox.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	case ".mbox", ".mbx", "":
		return FormatMbox, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// ReadFile reads every email in the file at path and calls fn for each.
// An empty format is inferred with DetectFormat. Mbox emails default their
// folder name to the file's base name.
func ReadFile(ctx context.Context, path string, format Format, fn func(*core.EmailContent) error, opts ...Option) error {
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mail file: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatJSON:
		return ReadJSON(ctx, f, fn, opts...)
	case FormatMbox:
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return ReadMbox(ctx, f, fn, append([]Option{WithFolderName(base)}, opts...)...)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// ReadAll collects every email from r in the given format.
func ReadAll(ctx context.Context, r io.Reader, format Format, opts ...Option) ([]*core.EmailContent, error) {
	var out []*core.EmailContent
	collect := func(content *core.EmailContent) error {
		out = append(out, content)
		return nil
	}

	var err error
	switch format {
	case FormatJSON:
		err = ReadJSON(ctx, r, collect, opts...)
	case FormatMbox:
		err = ReadMbox(ctx, r, collect, opts...)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return out, err
}
