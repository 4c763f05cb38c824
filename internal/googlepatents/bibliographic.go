package googlepatents

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/models"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

// stage reads one field group at the cursor. Stages run in page order and
// each one only sees what the previous stages left unread, since field names
// repeat further down the block (every legal event has a title and a date).
type stage struct {
	name string
	read func(*walk) error
}

var bibliographicStages = []stage{
	{"publication", readPublication},
	{"authority", readAuthority},
	{"prior-art-keywords", readPriorArtKeywords},
	{"prior-art-date", readPriorArtDate},
	{"legal-status", readLegalStatus},
	{"application-number", readApplicationNumber},
	{"cross-references", readCrossReferences},
	{"inventors", readInventors},
	{"assignees", readAssignees},
	{"dates", readDates},
	{"legal-events", readLegalEvents},
}

type walk struct {
	tree   *tree
	cursor cursor
	rec    *models.GoogleRawPatent
}

func (w *walk) run(stages []stage) error {
	for _, s := range stages {
		if err := s.read(w); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (w *walk) require(prop string) (*html.Node, error) {
	n, ok := w.cursor.next(prop)
	if !ok {
		return nil, patent.Missing(prop)
	}
	return n, nil
}

func (w *walk) requireDate(prop string) (models.Date, error) {
	n, err := w.require(prop)
	if err != nil {
		return models.Date{}, err
	}
	d, err := models.ParseDate(dateValue(n))
	if err != nil {
		return models.Date{}, &patent.ContentError{Anchor: prop, Err: err}
	}
	return d, nil
}

func (w *walk) optional(prop string) (string, bool) {
	n, ok := w.cursor.next(prop)
	if !ok {
		return "", false
	}
	return value(n), true
}

func readPublication(w *walk) error {
	n, err := w.require(propPublicationNumber)
	if err != nil {
		return err
	}
	id, err := patent.Parse(value(n))
	if err != nil {
		return &patent.ContentError{Anchor: propPublicationNumber, Err: err}
	}
	number, hasNumber := w.optional(propNumberWithoutCode)
	kind, hasKind := w.optional(propKindCode)
	if hasNumber && hasKind {
		parts, err := patent.New(id.CountryCode, number, kind)
		if err != nil {
			return &patent.ContentError{Anchor: propNumberWithoutCode, Err: err}
		}
		if parts != id {
			return &patent.ContentError{
				Anchor: propNumberWithoutCode,
				Err:    fmt.Errorf("parts %s do not match publication number %s", parts, id),
			}
		}
	}
	description, _ := w.optional(propKindDescription)
	w.rec.DocumentNumber = patent.PublicationNumber{PatentNumber: id, KindCodeDescription: description}
	return nil
}

func readAuthority(w *walk) error {
	n, err := w.require(propCountryCode)
	if err != nil {
		return err
	}
	code := strings.ToUpper(value(n))
	if code != w.rec.DocumentNumber.CountryCode {
		return &patent.ContentError{
			Anchor: propCountryCode,
			Err: fmt.Errorf("authority %q does not match publication country %q",
				code, w.rec.DocumentNumber.CountryCode),
		}
	}
	w.optional(propCountryName)
	return nil
}

func readPriorArtKeywords(w *walk) error {
	w.rec.MiscDetails.PriorArtKeywords = values(w.cursor.all(propPriorArtKeywords))
	return nil
}

func readPriorArtDate(w *walk) error {
	d, err := w.requireDate(propPriorArtDate)
	w.rec.PriorArtDate = d
	return err
}

func readLegalStatus(w *walk) error {
	w.rec.MiscDetails.LegalStatus = models.DefaultLegalStatus
	n, ok := w.cursor.next(propLegalStatus)
	if !ok {
		return nil
	}
	inner := w.tree.within(n)
	status := text(n)
	if s, ok := inner.peek(propStatus); ok {
		status = text(s)
	}
	if status != "" {
		w.rec.MiscDetails.LegalStatus = status
	}
	return nil
}

func readApplicationNumber(w *walk) error {
	n, err := w.require(propApplicationNumber)
	if err != nil {
		return err
	}
	w.rec.ApplicationNumber = value(n)
	return nil
}

func readCrossReferences(w *walk) error {
	languages, err := references(w.cursor.all(propOtherLanguages), propOtherLanguages)
	if err != nil {
		return err
	}
	versions, err := references(w.cursor.all(propOtherVersions), propOtherVersions)
	if err != nil {
		return err
	}
	w.rec.MiscDetails.OtherLanguageRefs = append(languages, versions...)
	w.rec.MiscDetails.OtherVersionRefs = versions
	return nil
}

func references(nodes []*html.Node, prop string) ([]patent.DocumentReference, error) {
	refs := make([]patent.DocumentReference, 0, len(nodes))
	for _, n := range nodes {
		ref, err := patent.ParsePath(href(n))
		if err != nil {
			return nil, &patent.ContentError{Anchor: prop, Err: err}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func readInventors(w *walk) error {
	w.rec.Inventors = values(w.cursor.all(propInventor))
	return nil
}

func readAssignees(w *walk) error {
	w.rec.AssigneeCurrent = strings.Join(values(w.cursor.all(propAssigneeCurrent)), "; ")
	original := values(w.cursor.all(propAssigneeOriginal))
	if len(original) == 0 {
		return patent.Missing(propAssigneeOriginal)
	}
	w.rec.AssigneeOriginal = strings.Join(original, "; ")
	return nil
}

func readDates(w *walk) error {
	var err error
	if w.rec.PriorityDate, err = w.requireDate(propPriorityDate); err != nil {
		return err
	}
	if w.rec.FilingDate, err = w.requireDate(propFilingDate); err != nil {
		return err
	}
	w.rec.PublicationDate, err = w.requireDate(propPublicationDate)
	return err
}

func readLegalEvents(w *walk) error {
	limit := w.cursor.end
	events := w.cursor.all(propEvents)
	w.rec.MiscDetails.LegalEvents = make([]models.LegalEvent, 0, len(events))
	for _, n := range events {
		w.rec.MiscDetails.LegalEvents = append(w.rec.MiscDetails.LegalEvents, extractLegalEvent(w.tree, n, limit))
	}
	return nil
}
