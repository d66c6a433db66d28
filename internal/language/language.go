package language

import (
	"strings"

	"golang.org/x/text/cases"
)

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	code3   string   // ISO 639-2 primary (3-letter)
	alt3    string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}},
	{"es", "spa", "", "Spanish", []string{"spanish", "español"}},
	{"fr", "fra", "fre", "French", []string{"french", "français"}},
	{"de", "deu", "ger", "German", []string{"german", "deutsch"}},
	{"it", "ita", "", "Italian", []string{"italian"}},
	{"pt", "por", "", "Portuguese", []string{"portuguese"}},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}},
	{"ko", "kor", "", "Korean", []string{"korean"}},
	{"zh", "zho", "chi", "Chinese", []string{"chinese"}},
	{"ru", "rus", "", "Russian", []string{"russian"}},
	{"ar", "ara", "", "Arabic", []string{"arabic"}},
	{"nl", "nld", "dut", "Dutch", []string{"dutch"}},
	{"pl", "pol", "", "Polish", []string{"polish"}},
	{"sv", "swe", "", "Swedish", []string{"swedish"}},
	{"da", "dan", "", "Danish", []string{"danish"}},
	{"no", "nor", "", "Norwegian", []string{"norwegian"}},
	{"fi", "fin", "", "Finnish", []string{"finnish"}},
	{"la", "lat", "", "Latin", []string{"latin"}},
}

// Index maps built at init time.
var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

// Normalize trims, case-folds, and rewrites underscores as hyphens so en_GB,
// EN-gb, and en-gb compare equal.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	return cases.Fold().String(strings.ReplaceAll(code, "_", "-"))
}

func lookup(code string) *entry {
	code = Normalize(code)
	if code == "" {
		return nil
	}
	if base, _, ok := strings.Cut(code, "-"); ok {
		code = base
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// IsEnglish reports whether code names English under the configured codes.
// Any en-* regional tag and the literal word "english" always match.
func IsEnglish(code string, englishCodes []string) bool {
	norm := Normalize(code)
	if norm == "" {
		return false
	}
	if norm == "english" || strings.HasPrefix(norm, "en-") {
		return true
	}
	for _, candidate := range englishCodes {
		if Normalize(candidate) == norm {
			return true
		}
	}
	return false
}

// MatchesEnglish applies the candidate language filter: an empty list passes
// when includeMissing is set, otherwise any English entry passes.
func MatchesEnglish(langs []string, englishCodes []string, includeMissing bool) bool {
	hasAny := false
	for _, lang := range langs {
		if strings.TrimSpace(lang) == "" {
			continue
		}
		hasAny = true
		if IsEnglish(lang, englishCodes) {
			return true
		}
	}
	if !hasAny {
		return includeMissing
	}
	return false
}

// DisplayName returns a human-readable language name for any recognized code.
// Returns "Unknown" for empty input, or the uppercased code for unrecognized input.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// DisplayList renders a language list for logs and reports.
func DisplayList(langs []string) string {
	if len(langs) == 0 {
		return "none"
	}
	names := make([]string, 0, len(langs))
	seen := make(map[string]struct{}, len(langs))
	for _, lang := range langs {
		name := DisplayName(lang)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}
