package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"updatr/internal/fileutil"
	"updatr/internal/logging"
	"updatr/internal/metadata"
	"updatr/internal/runner"
	"updatr/internal/services"
)

// DefaultBinary is the fetch tool looked up on PATH.
const DefaultBinary = "fetch-ebook-metadata"

const maxErrorOutput = 500

// Streamer runs a long command with line-by-line logging. *runner.Runner
// satisfies it.
type Streamer interface {
	ExecuteStreaming(ctx context.Context, args []string, timeout, heartbeat time.Duration) (runner.Result, error)
}

// Request describes one lookup. ISBN takes precedence; without it the
// identifiers, title and authors are passed.
type Request struct {
	ISBN        string
	Identifiers map[string]string
	Title       string
	Authors     []string
	OPFPath     string
	CoverPath   string
}

// RequestFor builds a lookup for a catalog item writing to the given paths.
func RequestFor(item metadata.Item, opfPath, coverPath string) Request {
	return Request{
		ISBN:        item.ISBN(),
		Identifiers: item.Identifiers(),
		Title:       item.Title(),
		Authors:     item.Authors(),
		OPFPath:     opfPath,
		CoverPath:   coverPath,
	}
}

// Client invokes the fetch tool.
type Client struct {
	binary    string
	timeout   time.Duration
	heartbeat time.Duration
	exec      Streamer
	logger    *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBinary overrides the fetch tool path.
func WithBinary(binary string) Option {
	return func(c *Client) {
		if binary = strings.TrimSpace(binary); binary != "" {
			c.binary = binary
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a client. timeout and heartbeat of zero disable each.
func New(exec Streamer, timeout, heartbeat time.Duration, opts ...Option) (*Client, error) {
	if exec == nil {
		return nil, errors.New("fetch executor required")
	}
	c := &Client{
		binary:    DefaultBinary,
		timeout:   timeout,
		heartbeat: heartbeat,
		exec:      exec,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "fetch")
	return c, nil
}

// Args renders the tool invocation for req.
func (c *Client) Args(req Request) []string {
	args := []string{c.binary, "--opf", req.OPFPath, "--cover", req.CoverPath}
	if isbn := strings.TrimSpace(req.ISBN); isbn != "" {
		return append(args, "--isbn", isbn)
	}
	keys := make([]string, 0, len(req.Identifiers))
	for k := range req.Identifiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--identifier", k+":"+req.Identifiers[k])
	}
	if title := strings.TrimSpace(req.Title); title != "" {
		args = append(args, "--title", title)
	}
	if len(req.Authors) > 0 {
		args = append(args, "--authors", strings.Join(req.Authors, ", "))
	}
	return args
}

// Fetch runs the tool and verifies it produced a non-empty OPF document.
func (c *Client) Fetch(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.OPFPath) == "" || strings.TrimSpace(req.CoverPath) == "" {
		return services.Wrap(services.ErrValidation, "fetch", "", "opf and cover paths required", nil)
	}
	// A stale OPF from an earlier attempt must not be mistaken for output.
	if err := fileutil.RemoveIfExists(req.OPFPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "fetch", "", "clear previous opf", err)
	}
	if err := fileutil.RemoveIfExists(req.CoverPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "fetch", "", "clear previous cover", err)
	}

	logging.WithContext(ctx, c.logger).Info("fetching metadata",
		logging.String("title", req.Title),
		logging.Bool("by_isbn", strings.TrimSpace(req.ISBN) != ""),
		logging.Duration("timeout", c.timeout))

	res, err := c.exec.ExecuteStreaming(ctx, c.Args(req), c.timeout, c.heartbeat)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrExternalTool, "fetch", "", "start "+c.binary, err)
	}
	tool := filepath.Base(c.binary)
	if res.TimedOut {
		msg := fmt.Sprintf("%s timed out after %ds", tool, int(c.timeout/time.Second))
		return services.Wrap(services.ErrTimeout, "fetch", "", msg, nil)
	}
	if res.ExitCode != 0 {
		msg := fmt.Sprintf("%s failed rc=%d", tool, res.ExitCode)
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			msg += " stderr=" + runner.Truncate(stderr, maxErrorOutput)
		}
		return services.Wrap(services.ErrExternalTool, "fetch", "", msg, nil)
	}
	if !fileutil.NonEmptyFile(req.OPFPath) {
		return services.Wrap(services.ErrExternalTool, "fetch", "", tool+" produced no OPF", nil)
	}
	return nil
}
