// Package familizer reads family-lookup responses: an HTML table holding
// one inner table per queried patent number, each with the queried number
// and either its family, a "not found" marker, or a pointer to another row.
package familizer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/IBM/fp-go/v2/array"
	F "github.com/IBM/fp-go/v2/function"
	"github.com/IBM/fp-go/v2/option"
	"github.com/PuerkitoBio/goquery"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

const (
	NotFound     = "Not found"
	SameFamilyAs = "A member of the same family as"
)

type row struct {
	input  string
	status string
}

// resolved is a row after key promotion. members keeps the literal list as
// listed in the response, before the key was taken out of it.
type resolved struct {
	key     patent.PatentNumber
	family  option.Option[[]patent.PatentNumber]
	members option.Option[[]patent.PatentNumber]
}

// Parse reads a family-lookup response. Rows that point at another row are
// resolved after every direct row, so their order in the response does not
// matter; a pointer to an unknown row, or a cycle of pointers, is a
// *patent.ContentError.
func Parse(content []byte) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return Result{}, fmt.Errorf("read html: %w", err)
	}
	rows, err := readRows(doc)
	if err != nil {
		return Result{}, err
	}

	direct := make(map[string]resolved)
	pointers := make(map[string]string)
	for _, r := range rows {
		switch {
		case r.status == NotFound:
			key, err := patent.Parse(r.input)
			if err != nil {
				return Result{}, fmt.Errorf("family input: %w", err)
			}
			none := option.None[[]patent.PatentNumber]()
			direct[r.input] = resolved{key: key, family: none, members: none}
		case strings.Contains(r.status, SameFamilyAs):
			pointers[r.input] = strings.TrimSpace(strings.Replace(r.status, SameFamilyAs, "", 1))
		default:
			res, err := resolveList(r.input, strings.Split(strings.TrimSpace(r.status), " "))
			if err != nil {
				return Result{}, err
			}
			direct[r.input] = res
		}
	}

	copied := make(map[string]resolved, len(pointers))
	for input := range pointers {
		referent, err := follow(input, direct, pointers)
		if err != nil {
			return Result{}, err
		}
		res, err := resolveCopy(input, referent.members)
		if err != nil {
			return Result{}, err
		}
		copied[input] = res
	}

	out := Result{families: make(map[patent.PatentNumber]option.Option[[]patent.PatentNumber])}
	for _, r := range rows {
		res, ok := copied[r.input]
		if !ok {
			res = direct[r.input]
		}
		if _, seen := out.families[res.key]; !seen {
			out.inputs = append(out.inputs, res.key)
		}
		out.families[res.key] = res.family
	}
	return out, nil
}

// readRows collects the input and status cells of every inner table. Inner
// tables are the tables that hold no further table; an HTML parser may move
// tables nested directly in a table out to sibling position, so both shapes
// are accepted. Tables without cells are containers emptied that way.
func readRows(doc *goquery.Document) ([]row, error) {
	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, patent.Missing("table")
	}
	var rows []row
	var err error
	tables.EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if table.Find("table").Length() > 0 {
			return true
		}
		cells := table.Find("td")
		switch cells.Length() {
		case 0:
			return true
		case 1:
			err = &patent.ContentError{Anchor: "td", Err: fmt.Errorf("row %d has a single cell", len(rows))}
			return false
		}
		rows = append(rows, row{
			input:  strings.TrimSpace(cells.Eq(0).Text()),
			status: strings.TrimSpace(cells.Eq(1).Text()),
		})
		return true
	})
	return rows, err
}

// resolveList parses a literal family list and promotes the member that
// shares the input's number to be the key, dropping it from its own family.
func resolveList(input string, members []string) (resolved, error) {
	var family []patent.PatentNumber
	for _, m := range F.Pipe1(members, array.Filter(func(s string) bool { return s != "" })) {
		pn, err := patent.Parse(m)
		if err != nil {
			return resolved{}, fmt.Errorf("family of %q: %w", input, err)
		}
		family = append(family, pn)
	}
	res, err := promote(input, family)
	res.members = option.Some(family)
	return res, err
}

// resolveCopy gives input the literal family of the row it points at and
// promotes input's own entry out of it, so the referent stays a member.
func resolveCopy(input string, members option.Option[[]patent.PatentNumber]) (resolved, error) {
	if !isSome(members) {
		key, err := patent.Parse(input)
		if err != nil {
			return resolved{}, fmt.Errorf("family input: %w", err)
		}
		return resolved{key: key, family: members, members: members}, nil
	}
	literal := append([]patent.PatentNumber{}, F.Pipe1(members, option.GetOrElse(func() []patent.PatentNumber { return nil }))...)
	res, err := promote(input, literal)
	res.members = option.Some(literal)
	return res, err
}

func promote(input string, family []patent.PatentNumber) (resolved, error) {
	key, err := patent.Parse(input)
	if err != nil {
		return resolved{}, fmt.Errorf("family input: %w", err)
	}
	rest := make([]patent.PatentNumber, 0, len(family))
	promoted := false
	for _, m := range family {
		if !promoted && m.Number == key.Number {
			key, promoted = m, true
			continue
		}
		rest = append(rest, m)
	}
	return resolved{key: key, family: option.Some(rest)}, nil
}

// follow walks pointer rows until it reaches a directly resolved row.
func follow(input string, direct map[string]resolved, pointers map[string]string) (resolved, error) {
	visited := map[string]bool{input: true}
	target := pointers[input]
	for {
		name, ok := match(target, direct)
		if ok {
			return direct[name], nil
		}
		name, ok = matchPointer(target, pointers)
		if !ok {
			return resolved{}, &patent.ContentError{
				Anchor: input,
				Err:    fmt.Errorf("referenced family member %q is not in the response", target),
			}
		}
		if visited[name] {
			return resolved{}, &patent.ContentError{
				Anchor: input,
				Err:    fmt.Errorf("family references form a cycle at %q", name),
			}
		}
		visited[name] = true
		target = pointers[name]
	}
}

// match finds the row named target, first verbatim, then by country and number.
func match(target string, direct map[string]resolved) (string, bool) {
	if _, ok := direct[target]; ok {
		return target, true
	}
	for name := range direct {
		if sameDocument(name, target) {
			return name, true
		}
	}
	return "", false
}

func matchPointer(target string, pointers map[string]string) (string, bool) {
	if _, ok := pointers[target]; ok {
		return target, true
	}
	for name := range pointers {
		if sameDocument(name, target) {
			return name, true
		}
	}
	return "", false
}

func sameDocument(a, b string) bool {
	pa, err := patent.Parse(a)
	if err != nil {
		return false
	}
	pb, err := patent.Parse(b)
	if err != nil {
		return false
	}
	return pa.CountryCode == pb.CountryCode && pa.Number == pb.Number
}

func isSome[A any](o option.Option[A]) bool {
	return F.Pipe2(
		o,
		option.Map(func(_ A) bool { return true }),
		option.GetOrElse(func() bool { return false }),
	)
}
