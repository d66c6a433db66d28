package metadata

import "strings"

// undefinedPubdate is the catalog's placeholder for "no publication date".
const undefinedPubdate = "0101-01-01"

// Snapshot is the normalized view of the fields that make up an item's
// metadata content. Slices and maps are never nil so that empty values
// always encode the same way.
type Snapshot struct {
	Title       string            `json:"title"`
	Authors     []string          `json:"authors"`
	Publisher   string            `json:"publisher"`
	Pubdate     string            `json:"pubdate"`
	Languages   []string          `json:"languages"`
	ISBN        string            `json:"isbn"`
	Identifiers map[string]string `json:"identifiers"`
	Tags        []string          `json:"tags"`
	HasComments bool              `json:"comments_present"`
	HasCover    bool              `json:"cover_present"`
}

// TakeSnapshot extracts a Snapshot from a catalog record. Missing or
// malformed fields become empty values.
func TakeSnapshot(it Item) Snapshot {
	f := it.Fields
	return Snapshot{
		Title:       textValue(f["title"]),
		Authors:     listValue(f["authors"], "&"),
		Publisher:   textValue(f["publisher"]),
		Pubdate:     pubdateValue(f["pubdate"]),
		Languages:   lowerAll(listValue(f["languages"], ",")),
		ISBN:        isbnValue(f["isbn"]),
		Identifiers: identifiersValue(f["identifiers"]),
		Tags:        listValue(f["tags"], ","),
		HasComments: textValue(f["comments"]) != "",
		HasCover:    presentValue(f["cover"]),
	}
}

func pubdateValue(v any) string {
	s := textValue(v)
	if strings.HasPrefix(s, undefinedPubdate) {
		return ""
	}
	return s
}

func isbnValue(v any) string {
	s := textValue(v)
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	return strings.ToUpper(s)
}

// Identifiers returns the item's identifier map, keys lower-cased.
func (it Item) Identifiers() map[string]string {
	return identifiersValue(it.Fields["identifiers"])
}

// ISBN returns the normalized ISBN or "".
func (it Item) ISBN() string {
	return isbnValue(it.Fields["isbn"])
}

// Authors returns the author list in catalog order.
func (it Item) Authors() []string {
	return listValue(it.Fields["authors"], "&")
}
