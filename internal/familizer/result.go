package familizer

import (
	"encoding/json"

	F "github.com/IBM/fp-go/v2/function"
	"github.com/IBM/fp-go/v2/option"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

// Result maps each queried identifier, promoted to its canonical form, to
// its family. None means the lookup service knew no family for it.
type Result struct {
	inputs   []patent.PatentNumber
	families map[patent.PatentNumber]option.Option[[]patent.PatentNumber]
}

// Inputs returns the canonical keys in response order.
func (r Result) Inputs() []patent.PatentNumber {
	return append([]patent.PatentNumber(nil), r.inputs...)
}

// Lookup returns the family of pn and whether pn was a key at all.
func (r Result) Lookup(pn patent.PatentNumber) (option.Option[[]patent.PatentNumber], bool) {
	family, ok := r.families[pn]
	return family, ok
}

// Family returns the members of pn's family; nil when pn has none or is not a key.
func (r Result) Family(pn patent.PatentNumber) []patent.PatentNumber {
	family, ok := r.families[pn]
	if !ok {
		return nil
	}
	return F.Pipe1(family, option.GetOrElse(func() []patent.PatentNumber { return nil }))
}

// Len is the number of keys.
func (r Result) Len() int {
	return len(r.inputs)
}

type jsonEntry struct {
	Input  patent.PatentNumber   `json:"input"`
	Found  bool                  `json:"found"`
	Family []patent.PatentNumber `json:"family"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	entries := make([]jsonEntry, 0, len(r.inputs))
	for _, in := range r.inputs {
		family := r.families[in]
		entries = append(entries, jsonEntry{
			Input:  in,
			Found:  isSome(family),
			Family: r.Family(in),
		})
	}
	return json.Marshal(entries)
}
