package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"updatr/internal/logging"
	"updatr/internal/runner"
	"updatr/internal/services"
)

// MaxErrorOutput bounds the stderr excerpt carried in error messages.
const MaxErrorOutput = 500

// DefaultBinary is the catalog tool looked up on PATH.
const DefaultBinary = "calibredb"

var (
	// ErrCatalogBusy means the library is held open by another program.
	ErrCatalogBusy = errors.New("catalog library is in use by another program")
	// ErrRemoteNotFound means the Content Server does not know the library.
	ErrRemoteNotFound = errors.New("catalog library not found on content server")
)

const (
	busyGuidance = "Either close Calibre or pass --library-url pointing at the running Content Server."
	notFoundHint = "Check the Content Server URL and library id, and avoid a trailing slash after the fragment.\n" +
		"Example: --library-url \"http://localhost:8081/#en_nonfiction\""
)

// Executor runs one catalog tool invocation. *runner.Runner satisfies it.
type Executor interface {
	Execute(ctx context.Context, cmd runner.Command) (runner.Result, error)
}

// Option configures the client.
type Option func(*Client)

// WithBinary overrides the catalog tool path.
func WithBinary(binary string) Option {
	return func(c *Client) {
		if binary = strings.TrimSpace(binary); binary != "" {
			c.binary = binary
		}
	}
}

// WithCredentials sets the Content Server login. Ignored for local libraries.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = strings.TrimSpace(username)
		c.password = password
	}
}

// WithTimeout bounds each invocation. Zero disables the limit.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
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

// Client wraps catalog tool interactions for one library.
type Client struct {
	library  string
	binary   string
	username string
	password string
	timeout  time.Duration
	exec     Executor
	logger   *slog.Logger
}

// New constructs a client for library, a directory path or http(s) URL.
func New(library string, exec Executor, opts ...Option) (*Client, error) {
	library = strings.TrimSpace(library)
	if library == "" {
		return nil, errors.New("catalog library required")
	}
	if exec == nil {
		return nil, errors.New("catalog executor required")
	}
	c := &Client{
		library: library,
		binary:  DefaultBinary,
		exec:    exec,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "catalog")
	return c, nil
}

// Library returns the library the client targets.
func (c *Client) Library() string { return c.library }

// IsRemote reports whether library is a Content Server URL.
func IsRemote(library string) bool {
	lower := strings.ToLower(strings.TrimSpace(library))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func (c *Client) command(args ...string) []string {
	cmd := []string{c.binary, "--with-library", c.library}
	if IsRemote(c.library) && c.username != "" {
		cmd = append(cmd, "--username", c.username)
		if c.password != "" {
			cmd = append(cmd, "--password", c.password)
		}
	}
	return append(cmd, args...)
}

func (c *Client) run(ctx context.Context, args ...string) (runner.Result, error) {
	res, err := c.exec.Execute(ctx, runner.Command{
		Args:    c.command(args...),
		Capture: true,
		Timeout: c.timeout,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, services.Wrap(services.ErrExternalTool, "catalog", args[0], "start "+c.binary, err)
	}
	return res, nil
}

// failure renders a non-zero result as an external tool error.
func failure(operation string, res runner.Result) error {
	msg := fmt.Sprintf("%s failed rc=%d", operation, res.ExitCode)
	if res.TimedOut {
		msg = operation + " timed out"
	}
	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		msg += " stderr=" + runner.Truncate(stderr, MaxErrorOutput)
	}
	marker := services.ErrExternalTool
	if res.TimedOut {
		marker = services.ErrTimeout
	}
	return services.Wrap(marker, "catalog", "", msg, nil)
}

func idArg(id int64) string {
	return strconv.FormatInt(id, 10)
}

// normalizedFormats lower-cases, dedupes and sorts format names.
func normalizedFormats(formats []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func searchExpression(formats []string) string {
	terms := normalizedFormats(formats)
	for i, f := range terms {
		terms[i] = "formats:" + f
	}
	return strings.Join(terms, " or ")
}

func formatArg(formats []string) string {
	terms := normalizedFormats(formats)
	for i, f := range terms {
		terms[i] = strings.ToUpper(f)
	}
	return strings.Join(terms, ",")
}
