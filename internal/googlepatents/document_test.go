package googlepatents

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/models"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

const minimalBibliographic = `
  <dl>
    <dd itemprop="publicationNumber">EP2371646B1</dd>
    <dd itemprop="countryCode">EP</dd>
    <dd><time itemprop="priorArtDate" datetime="2009-12-01">2009-12-01</time></dd>
    <dd itemprop="applicationNumber">EP10157890A</dd>
    <dd itemprop="assigneeOriginal">Example AG</dd>
    <dd><time itemprop="priorityDate" datetime="2009-12-01"></time></dd>
    <dd><time itemprop="filingDate" datetime="2010-03-26"></time></dd>
    <dd><time itemprop="publicationDate" datetime="2013-06-05"></time></dd>
  </dl>`

func page(body string) []byte {
	return []byte(`<html><body><article class="result">` + body + `</article></body></html>`)
}

func loadFixture(t *testing.T) []byte {
	t.Helper()
	content, err := os.ReadFile("testdata/US9145048B2.html")
	require.NoError(t, err)
	return content
}

func TestParseDocument_Fixture(t *testing.T) {
	rec, err := ParseDocument(loadFixture(t))
	require.NoError(t, err)

	assert.Equal(t, patent.PatentNumber{CountryCode: "US", Number: "9145048", KindCode: "B2"}, rec.DocumentNumber.PatentNumber)
	assert.Equal(t, "Patent ( having previously published pre-grant publication)", rec.DocumentNumber.KindCodeDescription)
	assert.Equal(t, "US12/751,612", rec.ApplicationNumber)

	assert.Equal(t, "2010-03-31", rec.PriorArtDate.String())
	assert.Equal(t, "2010-03-31", rec.PriorityDate.String())
	assert.Equal(t, "2010-04-01", rec.FilingDate.String(), "falls back to visible text")
	assert.Equal(t, "2015-09-29", rec.PublicationDate.String())

	require.Len(t, rec.Titles, 1)
	assert.Equal(t, models.TitleHeadingDerived, rec.Titles[0].SourceLabel)
	assert.Equal(t, "US9145048B2 - Apparatus for hybrid engine control", rec.Titles[0].Text)

	assert.Equal(t, []string{"Alex Example", "Sam Sample"}, rec.Inventors)
	assert.Equal(t, "Example Motors LLC", rec.AssigneeCurrent)
	assert.Equal(t, "Example Motor Corp", rec.AssigneeOriginal)

	misc := rec.MiscDetails
	assert.Equal(t, "Active", misc.LegalStatus)
	assert.Equal(t, []string{"engine", "clutch", "motor generator"}, misc.PriorArtKeywords)
	require.Len(t, misc.OtherLanguageRefs, 2)
	assert.Equal(t, "DE", misc.OtherLanguageRefs[0].LanguageCode)
	assert.Equal(t, "102011001234", misc.OtherLanguageRefs[0].Identifier.Number)
	assert.Equal(t, "US", misc.OtherLanguageRefs[1].Identifier.CountryCode)
	assert.Equal(t, "A1", misc.OtherLanguageRefs[1].Identifier.KindCode)
	require.Len(t, misc.OtherVersionRefs, 1)
	assert.Equal(t, misc.OtherLanguageRefs[1], misc.OtherVersionRefs[0])

	require.Len(t, rec.Images, 2)
	assert.Equal(t, "https://patentimages.example.com/US9145048B2-D00000.png", rec.Images[0].ImageURL)
	assert.Equal(t, "https://patentimages.example.com/US9145048B2-D00001.png", rec.Images[1].ImageURL)

	assert.Equal(t, []models.CpcClass{
		{Code: "B60K6/48", Description: "Parallel type"},
		{Code: "Y02T10/62", Description: "Hybrid vehicles"},
	}, rec.CpcClassifications)

	require.Len(t, rec.Abstracts, 2)
	assert.Equal(t, "EN", rec.Abstracts[0].LanguageCode)
	assert.Equal(t, "patent-office", rec.Abstracts[0].SourceLabel)
	assert.True(t, strings.HasPrefix(rec.Abstracts[0].MarkupFragment, "<abstract"))
	assert.Contains(t, rec.Abstracts[0].MarkupFragment, "<b>clutch</b>")
	assert.Equal(t, "DE", rec.Abstracts[1].LanguageCode)
	assert.Equal(t, "translation", rec.Abstracts[1].SourceLabel)
}

func TestParseDocument_LegalEvents(t *testing.T) {
	rec, err := ParseDocument(loadFixture(t))
	require.NoError(t, err)

	events := rec.MiscDetails.LegalEvents
	require.Len(t, events, 3)

	first := events[0]
	require.NotNil(t, first.EventDate)
	assert.Equal(t, "2010-03-31", first.EventDate.String())
	assert.Equal(t, "Priority to US12/751,612", first.Title)
	assert.Equal(t, "priority", first.EventType)
	assert.True(t, first.Critical)
	require.NotNil(t, first.DocumentReference)
	assert.Equal(t, "9145048", first.DocumentReference.Identifier.Number)

	second := events[1]
	assert.Nil(t, second.EventDate, "unparsable dates become no date")
	assert.False(t, second.Critical, "absent marker means not critical")
	require.NotNil(t, second.DocumentReference)
	assert.Equal(t, "20110245917", second.DocumentReference.Identifier.Number)

	third := events[2]
	assert.Equal(t, "granted", third.EventType)
	assert.False(t, third.Critical)
	assert.Nil(t, third.DocumentReference)
}

func TestParseDocument_LegalEventBorrowsFromNextEntry(t *testing.T) {
	events := `
    <dd itemprop="events" itemscope repeat>
      <span itemprop="type">filing</span>
    </dd>
    <dd itemprop="events" itemscope repeat>
      <time itemprop="date" datetime="2011-01-01">2011-01-01</time>
      <span itemprop="title">Second</span>
      <span itemprop="type">publication</span>
      <span itemprop="critical" content="true" bool>Critical</span>
      <span itemprop="documentId">patent/EP2371646A1/en</span>
    </dd>
  </dl>`
	body := strings.Replace(minimalBibliographic, "</dl>", events, 1)
	rec, err := ParseDocument(page(body))
	require.NoError(t, err)

	got := rec.MiscDetails.LegalEvents
	require.Len(t, got, 2)

	first := got[0]
	require.NotNil(t, first.EventDate)
	assert.Equal(t, "2011-01-01", first.EventDate.String())
	assert.Equal(t, "Second", first.Title)
	assert.Equal(t, "filing", first.EventType)
	assert.False(t, first.Critical, "critical flag is read inside the entry only")
	assert.Nil(t, first.DocumentReference, "document reference is read inside the entry only")

	second := got[1]
	require.NotNil(t, second.EventDate)
	assert.Equal(t, "2011-01-01", second.EventDate.String())
	assert.Equal(t, "Second", second.Title)
	assert.Equal(t, "publication", second.EventType)
	assert.True(t, second.Critical)
	require.NotNil(t, second.DocumentReference)
}

func TestParseDocument_MissingRoot(t *testing.T) {
	_, err := ParseDocument([]byte(`<html><body><div class="result">` + minimalBibliographic + `</div></body></html>`))
	require.Error(t, err)
	var cerr *patent.ContentError
	assert.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, patent.ErrContent)
}

func TestParseDocument_MissingBibliographicBlock(t *testing.T) {
	_, err := ParseDocument(page(`<h1 itemprop="pageTitle">Something - Google Patents</h1>`))
	assert.ErrorIs(t, err, patent.ErrContent)
}

func TestParseDocument_NoTrailingSections(t *testing.T) {
	rec, err := ParseDocument(page(minimalBibliographic))
	require.NoError(t, err)

	assert.Equal(t, "EP-2371646-B1", rec.DocumentNumber.String())
	assert.Empty(t, rec.Images)
	assert.NotNil(t, rec.Images)
	assert.Empty(t, rec.CpcClassifications)
	assert.NotNil(t, rec.CpcClassifications)
	assert.Empty(t, rec.Titles)
	assert.Empty(t, rec.Abstracts)
	assert.Equal(t, models.DefaultLegalStatus, rec.MiscDetails.LegalStatus)
	assert.Empty(t, rec.MiscDetails.LegalEvents)
	assert.Empty(t, rec.AssigneeCurrent)
}

func TestParseDocument_ClassificationsWithoutImages(t *testing.T) {
	rec, err := ParseDocument(page(minimalBibliographic + `
  <section>
    <h2>Classifications</h2>
    <ul itemprop="cpcs">
      <li itemprop="cpcs"><span itemprop="Code">F02D</span><span itemprop="Description">Controlling engines</span></li>
      <li itemprop="cpcs"><span itemprop="Code">F02D41/00</span><span itemprop="Description">Electrical control</span><meta itemprop="Leaf" content="true"></li>
    </ul>
  </section>`))
	require.NoError(t, err)
	assert.Empty(t, rec.Images)
	assert.Equal(t, []models.CpcClass{{Code: "F02D41/00", Description: "Electrical control"}}, rec.CpcClassifications)
}

func TestParseDocument_UnrelatedSectionIsIgnored(t *testing.T) {
	rec, err := ParseDocument(page(minimalBibliographic + `
  <section><h2>Description</h2><ul itemprop="cpcs"><li itemprop="cpcs"><span itemprop="Code">X</span><meta itemprop="Leaf" content="true"></li></ul></section>
  <section><h2>Classifications</h2></section>`))
	require.NoError(t, err)
	assert.Empty(t, rec.Images)
	assert.Empty(t, rec.CpcClassifications)
}

func TestParseDocument_StructuredTitle(t *testing.T) {
	rec, err := ParseDocument(page(`<h1 itemprop="pageTitle">EP2371646B1 - <span itemprop="title">Hybrid  drive
	system</span> - Google Patents</h1>` + minimalBibliographic))
	require.NoError(t, err)
	assert.Equal(t, []models.RawPatentTitle{{SourceLabel: models.TitleStructured, Text: "Hybrid drive system"}}, rec.Titles)
}

func TestParseDocument_MandatoryFields(t *testing.T) {
	tests := []struct {
		name   string
		remove string
	}{
		{"publication number", `<dd itemprop="publicationNumber">EP2371646B1</dd>`},
		{"country code", `<dd itemprop="countryCode">EP</dd>`},
		{"prior art date", `<dd><time itemprop="priorArtDate" datetime="2009-12-01">2009-12-01</time></dd>`},
		{"application number", `<dd itemprop="applicationNumber">EP10157890A</dd>`},
		{"original assignee", `<dd itemprop="assigneeOriginal">Example AG</dd>`},
		{"publication date", `<dd><time itemprop="publicationDate" datetime="2013-06-05"></time></dd>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.Replace(minimalBibliographic, tt.remove, "", 1)
			require.NotEqual(t, minimalBibliographic, body)
			_, err := ParseDocument(page(body))
			assert.ErrorIs(t, err, patent.ErrContent)
		})
	}
}

func TestParseDocument_AuthorityMismatch(t *testing.T) {
	body := strings.Replace(minimalBibliographic, `<dd itemprop="countryCode">EP</dd>`, `<dd itemprop="countryCode">US</dd>`, 1)
	_, err := ParseDocument(page(body))
	var cerr *patent.ContentError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "countryCode", cerr.Anchor)
}

func TestParseDocument_UnparsableMandatoryDate(t *testing.T) {
	body := strings.Replace(minimalBibliographic, `datetime="2010-03-26"`, `datetime="26.03.2010"`, 1)
	_, err := ParseDocument(page(body))
	assert.ErrorIs(t, err, patent.ErrContent)
}

func TestParseDocument_Idempotent(t *testing.T) {
	content := loadFixture(t)
	first, err := ParseDocument(content)
	require.NoError(t, err)
	second, err := ParseDocument(content)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestParseDocument_JSONFieldNames(t *testing.T) {
	rec, err := ParseDocument(loadFixture(t))
	require.NoError(t, err)

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))

	for _, key := range []string{
		"document_number", "application_number", "prior_art_date", "priority_date",
		"filing_date", "publication_date", "titles", "abstracts", "inventors",
		"assignee_original", "assignee_current", "images", "cpc_classifications", "misc_details",
	} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, "2015-09-29", fields["publication_date"])
	number := fields["document_number"].(map[string]any)
	assert.Equal(t, "US", number["country_code"])
	assert.Equal(t, "B2", number["kind_code"])
}
