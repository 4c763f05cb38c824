package googlepatents

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// entry is one element in document order; end is one past its last descendant.
type entry struct {
	node *html.Node
	end  int
}

// tree is the element list of a page subtree flattened in document order.
// Every lookup in the bibliographic walk is an index into it.
type tree struct {
	entries []entry
	index   map[*html.Node]int
}

func flatten(root *html.Node) *tree {
	t := &tree{index: make(map[*html.Node]int)}
	t.walk(root)
	return t
}

func (t *tree) walk(n *html.Node) {
	i := len(t.entries)
	t.entries = append(t.entries, entry{node: n})
	t.index[n] = i
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			t.walk(c)
		}
	}
	t.entries[i].end = len(t.entries)
}

// within returns a cursor over the descendants of n.
func (t *tree) within(n *html.Node) cursor {
	i := t.index[n]
	return cursor{tree: t, pos: i + 1, end: t.entries[i].end}
}

// after returns a cursor over everything following n's subtree, up to limit.
func (t *tree) after(n *html.Node, limit int) cursor {
	return cursor{tree: t, pos: t.entries[t.index[n]].end, end: limit}
}

// following returns a cursor starting at n's first descendant, up to limit.
func (t *tree) following(n *html.Node, limit int) cursor {
	return cursor{tree: t, pos: t.index[n] + 1, end: limit}
}

// cursor moves forward only, within [pos, end).
type cursor struct {
	tree *tree
	pos  int
	end  int
}

func (c *cursor) seek(match func(*html.Node) bool) (*html.Node, bool) {
	for i := c.pos; i < c.end; i++ {
		if n := c.tree.entries[i].node; match(n) {
			c.pos = i + 1
			return n, true
		}
	}
	return nil, false
}

// next advances to the next element carrying itemprop prop.
func (c *cursor) next(prop string) (*html.Node, bool) {
	return c.seek(func(n *html.Node) bool { return hasProp(n, prop) })
}

// nextTag advances to the next element named tag.
func (c *cursor) nextTag(tag string) (*html.Node, bool) {
	return c.seek(func(n *html.Node) bool { return n.Data == tag })
}

// peek finds the next element carrying prop without moving.
func (c cursor) peek(prop string) (*html.Node, bool) {
	return c.next(prop)
}

// all collects every remaining element carrying prop, leaving the cursor
// after the last one.
func (c *cursor) all(prop string) []*html.Node {
	var found []*html.Node
	for {
		n, ok := c.next(prop)
		if !ok {
			return found
		}
		found = append(found, n)
	}
}

// skip moves the cursor past n's subtree.
func (c *cursor) skip(n *html.Node) {
	if end := c.tree.entries[c.tree.index[n]].end; end > c.pos {
		c.pos = end
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasProp(n *html.Node, prop string) bool {
	v, ok := attr(n, "itemprop")
	if !ok {
		return false
	}
	for _, p := range strings.Fields(v) {
		if p == prop {
			return true
		}
	}
	return false
}

func selection(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

// text is the element's visible text with whitespace collapsed.
func text(n *html.Node) string {
	return strings.Join(strings.Fields(selection(n).Text()), " ")
}

// value reads a microdata value: the content attribute when present,
// otherwise the visible text.
func value(n *html.Node) string {
	if v, ok := attr(n, "content"); ok {
		return strings.TrimSpace(v)
	}
	return text(n)
}

// dateValue prefers the machine-readable datetime attribute.
func dateValue(n *html.Node) string {
	if v, ok := attr(n, "datetime"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return text(n)
}

// href reads the element's own link or the first nested one.
func href(n *html.Node) string {
	if v, ok := attr(n, "href"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(selection(n).Find("a[href]").First().AttrOr("href", ""))
}
