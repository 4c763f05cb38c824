package googlepatents

import (
	F "github.com/IBM/fp-go/v2/function"
	"github.com/IBM/fp-go/v2/option"
	"golang.org/x/net/html"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/models"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

// extractLegalEvent reads one events entry. Date, title and type are the
// nearest following matches up to limit; the critical flag and the document
// reference must sit inside the entry itself.
func extractLegalEvent(t *tree, event *html.Node, limit int) models.LegalEvent {
	var ev models.LegalEvent
	from := t.following(event, limit)

	if n, ok := from.peek(propEventDate); ok {
		ev.EventDate = optionalDate(dateValue(n))
	}
	if n, ok := from.peek(propEventTitle); ok {
		ev.Title = text(n)
	}
	if n, ok := from.peek(propEventType); ok {
		ev.EventType = text(n)
	}

	inside := t.within(event)
	if n, ok := inside.peek(propCritical); ok {
		content, _ := attr(n, "content")
		ev.Critical = content == "true"
	}
	if n, ok := inside.peek(propDocumentID); ok {
		if ref, err := patent.ParsePath(value(n)); err == nil {
			ev.DocumentReference = &ref
		}
	}
	return ev
}

// optionalDate yields nil for absent or unparsable dates.
func optionalDate(raw string) *models.Date {
	return F.Pipe2(
		option.TryCatch(func() (models.Date, error) {
			return models.ParseDate(raw)
		}),
		option.Map(func(d models.Date) *models.Date { return &d }),
		option.GetOrElse(func() *models.Date { return nil }),
	)
}

// extractClassification walks the entries of one classification subtree and
// returns the first one flagged as the leaf.
func extractClassification(t *tree, subtree *html.Node) option.Option[models.CpcClass] {
	scope := t.within(subtree)
	entries := scope.all(propCpcs)
	if len(entries) == 0 {
		entries = []*html.Node{subtree}
	}
	for i, e := range entries {
		c := t.within(e)
		if i+1 < len(entries) {
			if next := t.index[entries[i+1]]; next < c.end {
				c.end = next
			}
		}
		code, ok := c.next(propCode)
		if !ok {
			continue
		}
		var description string
		if n, ok := c.peek(propDescription); ok {
			description = text(n)
		}
		leaf, ok := c.peek(propLeaf)
		if !ok {
			continue
		}
		if content, has := attr(leaf, "content"); has && content != "true" {
			continue
		}
		return option.Some(models.CpcClass{Code: text(code), Description: description})
	}
	return option.None[models.CpcClass]()
}

// extractImage reads the full-size image URL from an images entry.
func extractImage(t *tree, item *html.Node) option.Option[models.ImageMeta] {
	c := t.within(item)
	n, ok := c.next(propImageFull)
	if !ok {
		return option.None[models.ImageMeta]()
	}
	url := value(n)
	if url == "" {
		return option.None[models.ImageMeta]()
	}
	return option.Some(models.ImageMeta{ImageURL: url})
}
