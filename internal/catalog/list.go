package catalog

import (
	"context"
	"fmt"
	"strings"

	"updatr/internal/language"
	"updatr/internal/logging"
	"updatr/internal/metadata"
	"updatr/internal/runner"
	"updatr/internal/services"
)

// Selection narrows a listing to the items a run should consider.
type Selection struct {
	Formats                []string
	EnglishCodes           []string
	IncludeMissingLanguage bool
}

// Matches applies the local format and language filters to one item.
func (s Selection) Matches(item metadata.Item) bool {
	if !item.HasAnyFormat(s.Formats) {
		return false
	}
	return language.MatchesEnglish(item.Languages(), s.EnglishCodes, s.IncludeMissingLanguage)
}

// ListCandidates lists items carrying one of the target formats and filters
// them by language. An empty search result is not an error.
func (c *Client) ListCandidates(ctx context.Context, sel Selection) ([]metadata.Item, error) {
	search := searchExpression(sel.Formats)
	if search == "" {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "list", "no target formats", nil)
	}
	res, err := c.run(ctx, "list", "--for-machine",
		"--fields", strings.Join(metadata.QueryFields, ","),
		"--search", search)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		if noMatches(res) {
			c.logger.Info("catalog has no items in the target formats", logging.String("search", search))
			return []metadata.Item{}, nil
		}
		return nil, c.listFailure(res)
	}

	items, err := metadata.ParseItems([]byte(res.Stdout))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "catalog", "list", "unexpected listing output", err)
	}
	out := make([]metadata.Item, 0, len(items))
	for _, item := range items {
		if sel.Matches(item) {
			out = append(out, item)
			continue
		}
		if item.HasAnyFormat(sel.Formats) {
			c.logger.Debug("item dropped by language filter",
				logging.Int64("item_id", item.ID),
				logging.String("title", item.Title()),
				logging.String("languages", language.DisplayList(item.Languages())))
		}
	}
	c.logger.Debug("catalog listing filtered",
		logging.Int("listed", len(items)),
		logging.Int("candidates", len(out)))
	return out, nil
}

func noMatches(res runner.Result) bool {
	return strings.Contains(strings.ToLower(res.Stderr), "no books matching the search expression")
}

func (c *Client) listFailure(res runner.Result) error {
	stderr := strings.ToLower(res.Stderr)
	switch {
	case strings.Contains(stderr, "another calibre program such as calibre-server"),
		strings.Contains(stderr, "another calibre program such as calibre server"):
		return services.Setup("list candidates", fmt.Errorf("%w\n%s", ErrCatalogBusy, busyGuidance))
	case strings.Contains(stderr, "not found") && IsRemote(c.library):
		return services.Setup("list candidates", fmt.Errorf("%w\n%s", ErrRemoteNotFound, notFoundHint))
	}
	logging.ErrorWithContext(c.logger, "catalog list failed", "catalog_list_failed",
		logging.Int("exit_code", res.ExitCode),
		logging.String(logging.FieldErrorHint, "run the same calibredb list command by hand to see the full error"),
		logging.String("stderr", runner.Truncate(strings.TrimSpace(res.Stderr), MaxErrorOutput)))
	return failure("list", res)
}

// Refresh re-reads one item after an update. found is false when the tool
// fails or returns nothing for the id.
func (c *Client) Refresh(ctx context.Context, id int64) (metadata.Item, bool, error) {
	res, err := c.run(ctx, "list", "--for-machine",
		"--fields", strings.Join(metadata.QueryFields, ","),
		"--search", "id:"+idArg(id))
	if err != nil {
		return metadata.Item{}, false, err
	}
	if !res.Success() || strings.TrimSpace(res.Stdout) == "" {
		return metadata.Item{}, false, nil
	}
	items, err := metadata.ParseItems([]byte(res.Stdout))
	if err != nil {
		return metadata.Item{}, false, services.Wrap(services.ErrExternalTool, "catalog", "refresh", "unexpected listing output", err)
	}
	for _, item := range items {
		if item.ID == id {
			return item, true, nil
		}
	}
	return metadata.Item{}, false, nil
}
