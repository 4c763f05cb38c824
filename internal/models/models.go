package models

import (
	"fmt"
	"strings"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

// Title provenance labels.
const (
	TitleStructured     = "structured"
	TitleHeadingDerived = "heading-derived"
)

// DefaultLegalStatus is recorded when a page carries no legal status.
const DefaultLegalStatus = "Unknown"

type RawPatentTitle struct {
	SourceLabel string `json:"source_label"`
	Text        string `json:"text"`
}

type RawPatentAbstract struct {
	LanguageCode   string `json:"language_code"`
	SourceLabel    string `json:"source_label"`
	MarkupFragment string `json:"markup_fragment"`
}

type LegalEvent struct {
	EventDate         *Date                     `json:"event_date"`
	Title             string                    `json:"title"`
	EventType         string                    `json:"event_type"`
	Critical          bool                      `json:"critical"`
	DocumentReference *patent.DocumentReference `json:"document_reference"`
}

// CpcClass is the leaf entry of one classification subtree.
type CpcClass struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type ImageMeta struct {
	ImageURL string `json:"image_url"`
}

type MiscDetails struct {
	LegalStatus      string   `json:"legal_status"`
	PriorArtKeywords []string `json:"prior_art_keywords"`
	// OtherLanguageRefs holds both the other-language and the other-version
	// references, in page order.
	OtherLanguageRefs []patent.DocumentReference `json:"other_language_refs"`
	OtherVersionRefs  []patent.DocumentReference `json:"other_version_refs"`
	LegalEvents       []LegalEvent               `json:"legal_events"`
}

// GoogleRawPatent is the bibliographic record extracted from one result page.
type GoogleRawPatent struct {
	DocumentNumber     patent.PublicationNumber `json:"document_number"`
	ApplicationNumber  string                   `json:"application_number"`
	PriorArtDate       Date                     `json:"prior_art_date"`
	PriorityDate       Date                     `json:"priority_date"`
	FilingDate         Date                     `json:"filing_date"`
	PublicationDate    Date                     `json:"publication_date"`
	Titles             []RawPatentTitle         `json:"titles"`
	Abstracts          []RawPatentAbstract      `json:"abstracts"`
	Inventors          []string                 `json:"inventors"`
	AssigneeOriginal   string                   `json:"assignee_original"`
	AssigneeCurrent    string                   `json:"assignee_current,omitempty"`
	Images             []ImageMeta              `json:"images"`
	CpcClassifications []CpcClass               `json:"cpc_classifications"`
	MiscDetails        MiscDetails              `json:"misc_details"`
}

// AbstractByLanguage returns the first abstract tagged with code.
func (g GoogleRawPatent) AbstractByLanguage(code string) (RawPatentAbstract, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, a := range g.Abstracts {
		if a.LanguageCode == code {
			return a, nil
		}
	}
	return RawPatentAbstract{}, fmt.Errorf("abstract with language code %q not found", code)
}

func (g GoogleRawPatent) EnglishAbstract() (RawPatentAbstract, error) {
	return g.AbstractByLanguage("EN")
}

// Title returns the first extracted title, or "" when the page had none.
func (g GoogleRawPatent) Title() string {
	if len(g.Titles) == 0 {
		return ""
	}
	return g.Titles[0].Text
}
