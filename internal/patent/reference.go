package patent

import (
	"fmt"
	"regexp"
	"strings"
)

var languagePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// DocumentReference points at another rendering of a document, e.g. the
// same publication in a different language.
type DocumentReference struct {
	Identifier   PatentNumber `json:"identifier"`
	LanguageCode string       `json:"language_code"`
	SourcePath   string       `json:"source_path"`
}

// ParsePath reads a reference from a path of the form /patent/<number>/<lang>.
// Empty segments are ignored, so leading, trailing and doubled slashes are fine.
func ParsePath(raw string) (DocumentReference, error) {
	var segments []string
	for _, s := range strings.Split(raw, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) != 3 {
		return DocumentReference{}, &FormatError{
			Input:  raw,
			Reason: fmt.Sprintf("expected 3 segments, got %d", len(segments)),
		}
	}
	if segments[0] != "patent" {
		return DocumentReference{}, &FormatError{Input: raw, Reason: "first segment must be 'patent'"}
	}
	id, err := Parse(segments[1])
	if err != nil {
		return DocumentReference{}, fmt.Errorf("reference %q: %w", raw, err)
	}
	lang := strings.ToUpper(segments[2])
	if !languagePattern.MatchString(lang) {
		return DocumentReference{}, &FormatError{Input: raw, Reason: "language must be two letters"}
	}
	return DocumentReference{Identifier: id, LanguageCode: lang, SourcePath: raw}, nil
}
