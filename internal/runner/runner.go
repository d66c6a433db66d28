package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"updatr/internal/logging"
)

// ExitTimedOut is the exit code reported for commands killed on timeout. No
// real process exit status can take this value.
const ExitTimedOut = -124

// MaxLoggedOutput bounds the stdout/stderr excerpts and streamed lines written
// to the log. Captured output is kept whole.
const MaxLoggedOutput = 2000

const (
	defaultPollInterval = time.Second
	defaultKillGrace    = 5 * time.Second
	defaultXvfbBinary   = "xvfb-run"
)

// ErrEmptyCommand is returned when Execute is called without arguments.
var ErrEmptyCommand = errors.New("runner: empty command")

// Result is the outcome of one external process invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Success reports a zero exit that was not cut short by a timeout.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Command describes one invocation for Execute.
type Command struct {
	Args []string
	// Capture collects stdout/stderr into the Result. When false the child
	// writes straight to the runner's passthrough writers.
	Capture  bool
	ExtraEnv map[string]string
	// Timeout and Heartbeat are disabled when zero.
	Timeout   time.Duration
	Heartbeat time.Duration
}

// Observer is notified after every finished invocation. tool is the base name
// of the requested binary, before any xvfb wrapping.
type Observer func(tool string, res Result)

// Runner executes external commands.
type Runner struct {
	logger        *slog.Logger
	envMode       EnvMode
	cleanPrefixes []string
	variants      []EnvVariant
	retryTrigger  RetryTrigger
	catalogBinary string
	fetchBinary   string
	headless      bool
	headlessEnv   map[string]string
	useXvfb       bool
	xvfbBinary    string
	debugEnv      bool
	pollInterval  time.Duration
	killGrace     time.Duration
	environ       func() []string
	stdout        io.Writer
	stderr        io.Writer
	observer      Observer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithEnvMode selects the catalog tool environment strategy.
func WithEnvMode(mode EnvMode) Option {
	return func(r *Runner) { r.envMode = mode }
}

// WithCleanPrefixes overrides the variable prefixes stripped by the clean strategy.
func WithCleanPrefixes(prefixes []string) Option {
	return func(r *Runner) {
		if len(prefixes) > 0 {
			r.cleanPrefixes = append([]string(nil), prefixes...)
		}
	}
}

// WithLocaleVariants overrides the ordered locale fallbacks used by the override strategy.
func WithLocaleVariants(variants []EnvVariant) Option {
	return func(r *Runner) { r.variants = append([]EnvVariant(nil), variants...) }
}

// WithRetryTrigger replaces the condition under which an inherit-mode failure
// is retried with a clean environment. A nil trigger disables the retry.
func WithRetryTrigger(trigger RetryTrigger) Option {
	return func(r *Runner) { r.retryTrigger = trigger }
}

// WithCatalogBinary names the tool the environment strategies apply to.
func WithCatalogBinary(binary string) Option {
	return func(r *Runner) { r.catalogBinary = binary }
}

// WithFetchBinary names the tool that receives the headless environment.
func WithFetchBinary(binary string) Option {
	return func(r *Runner) { r.fetchBinary = binary }
}

// WithHeadless toggles headless env injection for the fetch tool. A nil env
// keeps the defaults.
func WithHeadless(enabled bool, env map[string]string) Option {
	return func(r *Runner) {
		r.headless = enabled
		if env != nil {
			r.headlessEnv = copyEnv(env)
		}
	}
}

// WithXvfb wraps streaming invocations in `xvfb-run -a`.
func WithXvfb(enabled bool) Option {
	return func(r *Runner) { r.useXvfb = enabled }
}

// WithDebugEnv logs locale and python variables passed to the catalog tool.
func WithDebugEnv(enabled bool) Option {
	return func(r *Runner) { r.debugEnv = enabled }
}

// WithPollInterval sets how often heartbeats are checked.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Runner) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithEnviron replaces os.Environ as the base environment source.
func WithEnviron(fn func() []string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.environ = fn
		}
	}
}

// WithPassthrough sets where uncaptured output goes.
func WithPassthrough(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithObserver registers a callback for finished invocations.
func WithObserver(observer Observer) Option {
	return func(r *Runner) { r.observer = observer }
}

// New constructs a Runner with defaults: inherit mode, the msgpack clean-env
// retry, the three locale variants, and headless injection for
// fetch-ebook-metadata.
func New(opts ...Option) *Runner {
	r := &Runner{
		envMode:       EnvInherit,
		cleanPrefixes: append([]string(nil), DefaultCleanPrefixes...),
		variants:      append([]EnvVariant(nil), DefaultLocaleVariants...),
		retryTrigger:  StderrContains(DefaultRetrySignatures...),
		catalogBinary: "calibredb",
		fetchBinary:   "fetch-ebook-metadata",
		headless:      true,
		headlessEnv:   copyEnv(DefaultHeadlessEnv),
		xvfbBinary:    defaultXvfbBinary,
		pollInterval:  defaultPollInterval,
		killGrace:     defaultKillGrace,
		environ:       os.Environ,
		stdout:        os.Stdout,
		stderr:        os.Stderr,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = logging.NewComponentLogger(r.logger, "runner")
	return r
}

// Execute runs cmd, applying the configured environment strategy when the
// binary is the catalog tool.
func (r *Runner) Execute(ctx context.Context, cmd Command) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{}, ErrEmptyCommand
	}
	args := append([]string(nil), cmd.Args...)
	env := r.baseEnv(args[0], cmd.ExtraEnv)
	opts := spawnOptions{
		capture:   cmd.Capture,
		timeout:   cmd.Timeout,
		heartbeat: cmd.Heartbeat,
		tool:      filepath.Base(args[0]),
	}

	if !sameBinary(args[0], r.catalogBinary) {
		return r.spawn(ctx, args, env, opts)
	}

	switch r.envMode {
	case EnvClean:
		return r.spawn(ctx, args, r.debugLogged(ctx, "clean", cleanEnv(env, r.cleanPrefixes)), opts)
	case EnvOverride:
		return r.executeOverride(ctx, args, env, opts)
	default:
		return r.executeInherit(ctx, args, env, opts)
	}
}

// ExecuteStreaming runs a long command, capturing its output and logging each
// line as it arrives (stdout at info, stderr at warn).
func (r *Runner) ExecuteStreaming(ctx context.Context, args []string, timeout, heartbeat time.Duration) (Result, error) {
	if len(args) == 0 {
		return Result{}, ErrEmptyCommand
	}
	env := r.baseEnv(args[0], nil)
	run := append([]string(nil), args...)
	if r.useXvfb {
		run = append([]string{r.xvfbBinary, "-a"}, run...)
	}
	return r.spawn(ctx, run, env, spawnOptions{
		capture:   true,
		stream:    true,
		timeout:   timeout,
		heartbeat: heartbeat,
		tool:      filepath.Base(args[0]),
	})
}

func (r *Runner) executeInherit(ctx context.Context, args []string, env map[string]string, opts spawnOptions) (Result, error) {
	res, err := r.spawn(ctx, args, r.debugLogged(ctx, "inherit", env), opts)
	if err != nil || res.Success() {
		return res, err
	}
	r.logFailure(ctx, "catalog command failed", args, res)
	if r.retryTrigger == nil || !r.retryTrigger(res) {
		return res, nil
	}

	logging.WithContext(ctx, r.logger).Warn("retrying catalog command with clean environment",
		logging.String(logging.FieldEventType, "catalog_clean_env_retry"),
		logging.Strings("stripped_prefixes", r.cleanPrefixes))
	return r.spawn(ctx, args, r.debugLogged(ctx, "clean", cleanEnv(env, r.cleanPrefixes)), opts)
}

func (r *Runner) executeOverride(ctx context.Context, args []string, env map[string]string, opts spawnOptions) (Result, error) {
	res, err := r.spawn(ctx, args, r.debugLogged(ctx, "inherit", env), opts)
	if err != nil || res.Success() {
		return res, err
	}
	last := res
	logger := logging.WithContext(ctx, r.logger)
	for _, variant := range r.variants {
		logger.Info("retrying catalog command with locale override",
			logging.String("variant", variant.Name),
			logging.Int("previous_exit_code", last.ExitCode))
		attempt, err := r.spawn(ctx, args, r.debugLogged(ctx, variant.Name, variant.apply(env)), opts)
		if err != nil {
			return attempt, err
		}
		if attempt.Success() {
			return attempt, nil
		}
		last = attempt
	}
	r.logFailure(ctx, "catalog command failed with every locale override", args, last)
	return last, nil
}

func (r *Runner) baseEnv(binary string, extra map[string]string) map[string]string {
	env := environMap(r.environ())
	for k, v := range extra {
		env[k] = v
	}
	if r.headless && sameBinary(binary, r.fetchBinary) {
		for k, v := range r.headlessEnv {
			if _, ok := env[k]; !ok {
				env[k] = v
			}
		}
	}
	return env
}

func (r *Runner) debugLogged(ctx context.Context, strategy string, env map[string]string) map[string]string {
	if !r.debugEnv {
		return env
	}
	attrs := []logging.Attr{logging.String("strategy", strategy)}
	for _, key := range debugEnvKeys {
		value, ok := env[key]
		if !ok {
			value = "<unset>"
		}
		attrs = append(attrs, logging.String(key, value))
	}
	logging.WithContext(ctx, r.logger).Info("catalog environment", logging.Args(attrs...)...)
	return env
}

func (r *Runner) logFailure(ctx context.Context, msg string, args []string, res Result) {
	logging.WithContext(ctx, r.logger).Warn(msg,
		logging.String("command", DisplayCommand(args)),
		logging.Int("exit_code", res.ExitCode),
		logging.Bool("timed_out", res.TimedOut),
		logging.String("stderr", Truncate(strings.TrimSpace(res.Stderr), MaxLoggedOutput)),
		logging.String("stdout", Truncate(strings.TrimSpace(res.Stdout), MaxLoggedOutput)))
}

func sameBinary(candidate, configured string) bool {
	if configured == "" {
		return false
	}
	return candidate == configured || filepath.Base(candidate) == filepath.Base(configured)
}
