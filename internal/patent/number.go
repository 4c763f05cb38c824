// Package patent holds the patent identifier grammar shared by the Google
// Patents and family-lookup parsers: country/number/kind triples, document
// reference paths, and the error taxonomy the parsers report.
package patent

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTemplate renders an identifier as CC-NUMBER-KIND.
const DefaultTemplate = "{country}-{number}-{kind}"

// EPNumberWidth is the zero-padded width of European publication numbers.
const EPNumberWidth = 7

var (
	// Prefix match: country, optional separators, number (optional leading
	// letters then digits), optional separators, kind (0-1 letter then digits).
	numberPattern = regexp.MustCompile(`^([A-Z]{2})[- .]*([A-Z]*[0-9]+)[- .]*([A-Z]?[0-9]*)`)

	countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)
	digitsPattern  = regexp.MustCompile(`^[A-Z]*[0-9]+$`)
	epPattern      = regexp.MustCompile(`^[0-9]+$`)
	kindPattern    = regexp.MustCompile(`^[A-Z0-9]{0,2}$`)
)

// PatentNumber identifies one published patent document.
type PatentNumber struct {
	CountryCode string `json:"country_code"`
	Number      string `json:"number"`
	KindCode    string `json:"kind_code"`
}

// New validates the three parts and applies jurisdiction normalization.
func New(countryCode, number, kindCode string) (PatentNumber, error) {
	raw := countryCode + number + kindCode
	if !countryPattern.MatchString(countryCode) {
		return PatentNumber{}, &ValidationError{Input: raw, Reason: "country code must be two uppercase letters"}
	}
	if !digitsPattern.MatchString(number) {
		return PatentNumber{}, &ValidationError{Input: raw, Reason: "number must end in digits"}
	}
	if !kindPattern.MatchString(kindCode) {
		return PatentNumber{}, &ValidationError{Input: raw, Reason: "kind code must be at most two alphanumerics"}
	}
	if countryCode == "EP" && !epPattern.MatchString(number) {
		return PatentNumber{}, &ValidationError{Input: raw, Reason: "EP number must be all digits"}
	}
	if countryCode == "EP" && len(number) < EPNumberWidth {
		number = strings.Repeat("0", EPNumberWidth-len(number)) + number
	}
	return PatentNumber{CountryCode: countryCode, Number: number, KindCode: kindCode}, nil
}

// Parse reads an identifier from the start of raw. Text after the match is
// ignored when whitespace separates it from the identifier; any other
// trailing character fails validation.
func Parse(raw string) (PatentNumber, error) {
	loc := numberPattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return PatentNumber{}, &ValidationError{Input: raw, Reason: "no identifier prefix"}
	}
	end := loc[1]
	if rest := raw[end:]; rest != "" && !separated(raw[:end], rest) {
		return PatentNumber{}, &ValidationError{Input: raw, Reason: "unexpected trailing text " + quote(rest)}
	}
	return New(raw[loc[2]:loc[3]], raw[loc[4]:loc[5]], raw[loc[6]:loc[7]])
}

// ParseAny accepts text or an identifier that was already parsed.
func ParseAny(v any) (PatentNumber, error) {
	switch t := v.(type) {
	case string:
		return Parse(t)
	case PatentNumber:
		return t, nil
	case *PatentNumber:
		if t != nil {
			return *t, nil
		}
	}
	return PatentNumber{}, &TypeError{Value: v}
}

func separated(matched, rest string) bool {
	last, _ := utf8.DecodeLastRuneInString(matched)
	first, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsSpace(first) || last == ' '
}

func quote(s string) string {
	if len(s) > 16 {
		s = s[:16] + "..."
	}
	return "'" + s + "'"
}

// Format renders the identifier into template. Both the long placeholder
// names ({country_code}, {patent_number}, {kind_code}) and the short ones
// ({country}, {number}, {kind}) are recognised.
func (p PatentNumber) Format(template string) string {
	return strings.NewReplacer(
		"{country_code}", p.CountryCode,
		"{patent_number}", p.Number,
		"{kind_code}", p.KindCode,
		"{country}", p.CountryCode,
		"{number}", p.Number,
		"{kind}", p.KindCode,
	).Replace(template)
}

func (p PatentNumber) String() string {
	return p.Format(DefaultTemplate)
}

// Compact renders CCNUMBERKIND, the form used in result-page paths.
func (p PatentNumber) Compact() string {
	return p.CountryCode + p.Number + p.KindCode
}

// IDPath renders the result-page path /patent/<CCNUMBERKIND>/<lang>.
func (p PatentNumber) IDPath(lang string) string {
	return "/patent/" + p.Compact() + "/" + strings.ToLower(strings.TrimSpace(lang))
}

// IsZero reports whether p is the zero identifier.
func (p PatentNumber) IsZero() bool {
	return p == PatentNumber{}
}

// PublicationNumber is the identifier a bibliographic page is published under.
type PublicationNumber struct {
	PatentNumber
	KindCodeDescription string `json:"kind_code_description"`
}
