// Package dups finds byte-identical book files under a library root.
//
// Candidates are grouped by size and full-file BLAKE2b-256 digest. Only
// groups with at least two members are reported.
package dups

import (
	"cmp"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"updatr/internal/logging"
)

const hashBufferSize = 1 << 20

// DefaultExtensions are the book formats scanned when none are given.
var DefaultExtensions = []string{
	"epub", "pdf", "mobi", "azw", "azw3", "djvu", "fb2", "rtf", "txt", "doc", "docx", "cbz", "cbr",
}

var sidecarNames = map[string]struct{}{
	"metadata.opf": {},
	"cover.jpg":    {},
	"cover.jpeg":   {},
	"cover.png":    {},
}

// Options configures a scan.
type Options struct {
	Root            string
	Extensions      []string
	FollowSymlinks  bool
	MinSize         int64
	IncludeSidecars bool
	// Workers bounds concurrent hashing. Zero uses GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Group is a set of identical files.
type Group struct {
	Bytes int64    `json:"bytes"`
	Hash  string   `json:"blake2b"`
	Files []string `json:"files"`
}

// Wasted is the space reclaimable by keeping one copy.
func (g Group) Wasted() int64 {
	if len(g.Files) < 2 {
		return 0
	}
	return g.Bytes * int64(len(g.Files)-1)
}

// Report is the result of a scan.
type Report struct {
	Root       string        `json:"root"`
	Candidates int           `json:"candidates"`
	Hashed     int           `json:"hashed"`
	Groups     []Group       `json:"groups"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Wasted sums the reclaimable bytes over all groups.
func (r Report) Wasted() int64 {
	var total int64
	for _, g := range r.Groups {
		total += g.Wasted()
	}
	return total
}

type candidate struct {
	path string
	size int64
}

type hashed struct {
	candidate
	sum string
}

// Scan walks opts.Root and returns the duplicate groups.
func Scan(ctx context.Context, opts Options) (Report, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return Report{}, errors.New("dups: library root required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return Report{}, fmt.Errorf("dups: stat library root: %w", err)
	}
	if !info.IsDir() {
		return Report{}, fmt.Errorf("dups: library root %q is not a directory", root)
	}

	logger := logging.NewComponentLogger(opts.Logger, "dups")
	exts := normalizeExtensions(opts.Extensions)
	started := time.Now()
	logger.Info("starting duplicate scan",
		logging.String("root", root),
		logging.Bool("follow_symlinks", opts.FollowSymlinks),
		logging.Bool("include_sidecars", opts.IncludeSidecars),
		logging.Int64("min_size", opts.MinSize),
		logging.Strings("extensions", exts),
	)

	w := walker{opts: opts, exts: exts, logger: logger, visited: map[string]struct{}{}}
	if opts.FollowSymlinks {
		if real, err := filepath.EvalSymlinks(root); err == nil {
			w.visited[real] = struct{}{}
		}
	}
	if err := w.walk(ctx, root); err != nil {
		return Report{}, err
	}
	logger.Info("collected candidate files", logging.Int("count", len(w.found)))

	results, err := hashAll(ctx, w.found, opts.Workers, logger)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Root:       root,
		Candidates: len(w.found),
		Hashed:     len(results),
		Groups:     groupDuplicates(results),
		Elapsed:    time.Since(started),
	}
	logger.Info("duplicate scan finished",
		logging.Int("groups", len(report.Groups)),
		logging.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func normalizeExtensions(values []string) []string {
	if len(values) == 0 {
		return append([]string(nil), DefaultExtensions...)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v), "."))
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

type walker struct {
	opts    Options
	exts    []string
	logger  *slog.Logger
	visited map[string]struct{}
	found   []candidate
}

func (w *walker) walk(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("skipping unreadable directory", logging.String("path", dir), logging.Error(err))
		return nil
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		mode := entry.Type()
		if mode&fs.ModeSymlink != 0 {
			if !w.opts.FollowSymlinks {
				continue
			}
			target, err := os.Stat(path)
			if err != nil {
				w.logger.Warn("skipping broken symlink", logging.String("path", path), logging.Error(err))
				continue
			}
			mode = target.Mode().Type()
		}

		switch {
		case mode.IsDir():
			if w.opts.FollowSymlinks {
				real, err := filepath.EvalSymlinks(path)
				if err != nil {
					w.logger.Warn("skipping unresolvable directory", logging.String("path", path), logging.Error(err))
					continue
				}
				if _, seen := w.visited[real]; seen {
					w.logger.Debug("skipping already visited directory", logging.String("path", path))
					continue
				}
				w.visited[real] = struct{}{}
			}
			if err := w.walk(ctx, path); err != nil {
				return err
			}
		case mode.IsRegular():
			if !w.wanted(entry.Name()) {
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				w.logger.Warn("skipping file", logging.String("path", path), logging.Error(err))
				continue
			}
			if info.Size() < w.opts.MinSize {
				continue
			}
			w.found = append(w.found, candidate{path: path, size: info.Size()})
		}
	}
	return nil
}

func (w *walker) wanted(name string) bool {
	if w.opts.IncludeSidecars {
		if _, ok := sidecarNames[strings.ToLower(name)]; ok {
			return true
		}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return ext != "" && slices.Contains(w.exts, ext)
}

func hashAll(ctx context.Context, files []candidate, workers int, logger *slog.Logger) ([]hashed, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu      sync.Mutex
		results = make([]hashed, 0, len(files))
	)
	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sum, err := hashFile(gctx, file.path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("skipping file due to error", logging.String("path", file.path), logging.Error(err))
				return nil
			}
			mu.Lock()
			results = append(results, hashed{candidate: file, sum: sum})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Info("finished hashing files", logging.Int("count", len(results)))
	return results, nil
}

func hashFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	buf := make([]byte, hashBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("read %s: %w", path, readErr)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type groupKey struct {
	size int64
	sum  string
}

func groupDuplicates(files []hashed) []Group {
	byKey := make(map[groupKey][]string)
	for _, f := range files {
		key := groupKey{size: f.size, sum: f.sum}
		byKey[key] = append(byKey[key], f.path)
	}

	groups := make([]Group, 0)
	for key, paths := range byKey {
		if len(paths) < 2 {
			continue
		}
		slices.Sort(paths)
		groups = append(groups, Group{Bytes: key.size, Hash: key.sum, Files: paths})
	}
	slices.SortFunc(groups, func(a, b Group) int {
		if c := cmp.Compare(len(b.Files), len(a.Files)); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Wasted(), a.Wasted()); c != 0 {
			return c
		}
		return strings.Compare(a.Hash, b.Hash)
	})
	return groups
}
