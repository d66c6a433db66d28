package metadata

import (
	"errors"
	"fmt"
)

// Weights assigns points to each present field.
type Weights struct {
	Title       int
	Authors     int
	Publisher   int
	Pubdate     int
	ISBN        int
	Identifiers int
	Tags        int
	Comments    int
	Cover       int
}

// DefaultWeights gives every field one point.
func DefaultWeights() Weights {
	return Weights{
		Title: 1, Authors: 1, Publisher: 1, Pubdate: 1, ISBN: 1,
		Identifiers: 1, Tags: 1, Comments: 1, Cover: 1,
	}
}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"title_weight", w.Title},
		{"authors_weight", w.Authors},
		{"publisher_weight", w.Publisher},
		{"pubdate_weight", w.Pubdate},
		{"isbn_weight", w.ISBN},
		{"identifiers_weight", w.Identifiers},
		{"tags_weight", w.Tags},
		{"comments_weight", w.Comments},
		{"cover_weight", w.Cover},
	}
	var errs []error
	for _, f := range fields {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0 (got %d)", f.name, f.value))
		}
	}
	return errors.Join(errs...)
}

// Score sums the weights of present fields. The returned reasons name every
// missing field. The ISBN and identifiers weights do not stack; the larger
// applicable one counts.
func Score(s Snapshot, w Weights) (int, []string) {
	score := 0
	reasons := []string{}
	add := func(present bool, weight int, missing string) {
		if present {
			score += weight
			return
		}
		reasons = append(reasons, missing)
	}
	add(s.Title != "", w.Title, "missing title")
	add(len(s.Authors) > 0, w.Authors, "missing authors")
	add(s.Publisher != "", w.Publisher, "missing publisher")
	add(s.Pubdate != "", w.Pubdate, "missing pubdate")

	bonus, found := 0, false
	if s.ISBN != "" {
		bonus, found = w.ISBN, true
	}
	if len(s.Identifiers) > 0 {
		found = true
		bonus = max(bonus, w.Identifiers)
	}
	add(found, bonus, "missing identifiers/isbn")

	add(len(s.Tags) > 0, w.Tags, "missing tags")
	add(s.HasComments, w.Comments, "missing description/comments")
	add(s.HasCover, w.Cover, "missing cover")
	return score, reasons
}

// Scoring is the good-enough policy.
type Scoring struct {
	MinScore       int
	RequireTitle   bool
	RequireAuthors bool
	Weights        Weights
}

// GoodEnough reports whether the snapshot needs no fetch, along with the
// score and the reasons it fell short.
func (sc Scoring) GoodEnough(s Snapshot) (bool, int, []string) {
	score, reasons := Score(s, sc.Weights)
	ok := score >= sc.MinScore
	if sc.RequireTitle && s.Title == "" {
		ok = false
	}
	if sc.RequireAuthors && len(s.Authors) == 0 {
		ok = false
	}
	return ok, score, reasons
}
