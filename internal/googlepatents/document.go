// Package googlepatents extracts bibliographic records from Google Patents
// result pages. Pages are microdata-annotated HTML: fields are located by
// their itemprop markers in document order rather than by a schema.
package googlepatents

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/IBM/fp-go/v2/array"
	F "github.com/IBM/fp-go/v2/function"
	"github.com/IBM/fp-go/v2/option"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/models"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

const (
	rootSelector     = "article.result"
	abstractSelector = `section[itemprop~="abstract"]`

	propPageTitle         = "pageTitle"
	propTitle             = "title"
	propPublicationNumber = "publicationNumber"
	propNumberWithoutCode = "numberWithoutCodes"
	propKindCode          = "kindCode"
	propKindDescription   = "publicationDescription"
	propCountryCode       = "countryCode"
	propCountryName       = "countryName"
	propPriorArtKeywords  = "priorArtKeywords"
	propPriorArtDate      = "priorArtDate"
	propLegalStatus       = "legalStatusIfi"
	propStatus            = "status"
	propApplicationNumber = "applicationNumber"
	propOtherLanguages    = "otherLanguages"
	propOtherVersions     = "directAssociations"
	propInventor          = "inventor"
	propAssigneeCurrent   = "assigneeCurrent"
	propAssigneeOriginal  = "assigneeOriginal"
	propPriorityDate      = "priorityDate"
	propFilingDate        = "filingDate"
	propPublicationDate   = "publicationDate"
	propEvents            = "events"
	propEventDate         = "date"
	propEventTitle        = "title"
	propEventType         = "type"
	propCritical          = "critical"
	propDocumentID        = "documentId"
	propImages            = "images"
	propImageFull         = "full"
	propCpcs              = "cpcs"
	propCode              = "Code"
	propDescription       = "Description"
	propLeaf              = "Leaf"
)

// ParseDocument builds the bibliographic record of one result page. A
// missing root container or bibliographic block, or any missing mandatory
// field, fails the whole parse with a *patent.ContentError.
func ParseDocument(content []byte) (models.GoogleRawPatent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return models.GoogleRawPatent{}, fmt.Errorf("read html: %w", err)
	}
	article := doc.Find(rootSelector).First()
	if article.Length() == 0 {
		return models.GoogleRawPatent{}, patent.Missing(rootSelector)
	}

	rec := models.GoogleRawPatent{
		Titles:             extractTitles(article),
		Images:             []models.ImageMeta{},
		CpcClassifications: []models.CpcClass{},
	}

	dl := article.Find("dl").First()
	if dl.Length() == 0 {
		return models.GoogleRawPatent{}, patent.Missing("dl")
	}
	t := flatten(article.Get(0))
	w := &walk{tree: t, cursor: t.within(dl.Get(0)), rec: &rec}
	if err := w.run(bibliographicStages); err != nil {
		return models.GoogleRawPatent{}, err
	}

	rec.Images, rec.CpcClassifications = extractTrailingSections(t, dl.Get(0))
	rec.Abstracts = extractAbstracts(doc)
	return rec, nil
}

func extractTitles(article *goquery.Selection) []models.RawPatentTitle {
	heading := article.Find(fmt.Sprintf(`[itemprop~=%q]`, propPageTitle)).First()
	if heading.Length() == 0 {
		return []models.RawPatentTitle{}
	}
	if structured := heading.Find(fmt.Sprintf(`[itemprop~=%q]`, propTitle)).First(); structured.Length() > 0 {
		return []models.RawPatentTitle{{
			SourceLabel: models.TitleStructured,
			Text:        collapse(structured.Text()),
		}}
	}
	derived := collapse(heading.Text())
	if i := strings.LastIndex(derived, "-"); i >= 0 {
		derived = strings.TrimSpace(derived[:i])
	}
	return []models.RawPatentTitle{{SourceLabel: models.TitleHeadingDerived, Text: derived}}
}

// extractTrailingSections reads the images and classifications sections that
// may follow the bibliographic block, in that order.
func extractTrailingSections(t *tree, dl *html.Node) ([]models.ImageMeta, []models.CpcClass) {
	images := []models.ImageMeta{}
	classes := []models.CpcClass{}
	root := t.entries[0]
	c := t.after(dl, root.end)

	section, ok := c.nextTag("section")
	if !ok {
		return images, classes
	}
	if sectionHeading(section) == "images" {
		items := t.within(section)
		for _, item := range items.all(propImages) {
			images = appendSome(images, extractImage(t, item))
		}
		c.skip(section)
		if section, ok = c.nextTag("section"); !ok {
			return images, classes
		}
	}
	if sectionHeading(section) == "classifications" {
		scope := t.within(section)
		for {
			subtree, ok := scope.next(propCpcs)
			if !ok {
				break
			}
			classes = appendSome(classes, extractClassification(t, subtree))
			scope.skip(subtree)
		}
	}
	return images, classes
}

// sectionHeading returns the first word of the section's heading, lowercased,
// so "Images (9)" reads as "images".
func sectionHeading(section *html.Node) string {
	heading := selection(section).Find("h1, h2, h3, h4, h5, h6").First()
	words := strings.Fields(strings.ToLower(heading.Text()))
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

// extractAbstracts reads every abstract in the page's abstract section, then
// detaches the section from the document.
func extractAbstracts(doc *goquery.Document) []models.RawPatentAbstract {
	abstracts := []models.RawPatentAbstract{}
	section := doc.Find(abstractSelector).First()
	if section.Length() == 0 {
		return abstracts
	}
	section.Find("abstract").Each(func(_ int, s *goquery.Selection) {
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		abstracts = append(abstracts, models.RawPatentAbstract{
			LanguageCode:   strings.ToUpper(strings.TrimSpace(s.AttrOr("lang", ""))),
			SourceLabel:    s.AttrOr("load-source", ""),
			MarkupFragment: markup,
		})
	})
	section.Remove()
	return abstracts
}

func appendSome[A any](xs []A, o option.Option[A]) []A {
	return F.Pipe2(
		o,
		option.Map(func(a A) []A { return append(xs, a) }),
		option.GetOrElse(func() []A { return xs }),
	)
}

func values(nodes []*html.Node) []string {
	return append([]string{}, F.Pipe1(nodes, array.Map(value))...)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
