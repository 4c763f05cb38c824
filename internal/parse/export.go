package parse

import (
	"encoding/json"
	"strings"

	"github.com/IBM/fp-go/v2/array"
	ET "github.com/IBM/fp-go/v2/either"
	F "github.com/IBM/fp-go/v2/function"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/models"
)

var csvHeader = []string{
	"publication_number",
	"title",
	"legal_status",
	"priority_date",
	"cpc_codes",
	"inventors",
	"abstract_en",
}

const listSeparator = ";"

// csvRow flattens rec into the summary columns. The English abstract is
// rendered as Markdown when markdown is set and kept as markup otherwise;
// a page without one leaves the column empty.
func csvRow(rec models.GoogleRawPatent, markdown bool) []string {
	abstract := F.Pipe2(
		ET.TryCatchError[models.RawPatentAbstract](rec.EnglishAbstract()),
		ET.Chain(func(a models.RawPatentAbstract) ET.Either[error, string] {
			if !markdown {
				return ET.Right[error](strings.TrimSpace(a.MarkupFragment))
			}
			return ET.TryCatchError[string](a.Markdown())
		}),
		ET.GetOrElse(func(_ error) string { return "" }),
	)
	codes := F.Pipe1(rec.CpcClassifications, array.Map(func(c models.CpcClass) string { return c.Code }))
	return []string{
		rec.DocumentNumber.Compact(),
		rec.Title(),
		rec.MiscDetails.LegalStatus,
		rec.PriorityDate.String(),
		strings.Join(codes, listSeparator),
		strings.Join(rec.Inventors, listSeparator),
		abstract,
	}
}

func jsonLine(rec models.GoogleRawPatent) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
