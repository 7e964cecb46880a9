package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/payback159/raidsplit/pkg/calculator"
	"github.com/payback159/raidsplit/pkg/models"
)

const (
	headerTextColor = "#FFFFFF"
	cellTextColor   = "#000000"
	summaryFill     = "#F2F2F2"
)

func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func cell(a atom.Atom, text string, attrs ...string) *html.Node {
	n := element(a, attrs...)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return n
}

func style(background, color string, bold bool) string {
	s := fmt.Sprintf("background-color:%s;color:%s;border:1px solid #000000", background, color)
	if bold {
		s += ";font-weight:bold"
	}
	return s
}

// BuildHTML renders groups as an HTML table: a colored header cell per
// group spanning its two columns, character cells colored by class, and
// five summary rows of label/value pairs. Returns "" for no groups.
func BuildHTML(groups []models.Group) (string, error) {
	l := newLayout(groups)
	if l.width() == 0 {
		return "", nil
	}

	table := element(atom.Table, "style", "border-collapse:collapse")
	buffer := func(tr *html.Node, gi int) {
		if gi < len(groups)-1 {
			tr.AppendChild(cell(atom.Td, ""))
		}
	}

	header := element(atom.Tr)
	for gi, g := range groups {
		header.AppendChild(cell(atom.Th, GroupLabel(g),
			"colspan", strconv.Itoa(columnsPerGroup),
			"style", style(models.GroupHeaderColor(gi), headerTextColor, true)))
		buffer(header, gi)
	}
	table.AppendChild(header)

	for row := 0; row < l.rows; row++ {
		tr := element(atom.Tr)
		for gi := range groups {
			for half := 0; half < columnsPerGroup; half++ {
				if ch, ok := l.character(gi, row, half); ok {
					tr.AppendChild(cell(atom.Td, ch.Name,
						"style", style(models.ClassColor(ch.ClassName), cellTextColor, false)))
				} else {
					tr.AppendChild(cell(atom.Td, ""))
				}
			}
			buffer(tr, gi)
		}
		table.AppendChild(tr)
	}

	summaries := make([]calculator.GroupSummary, len(groups))
	for gi, g := range groups {
		summaries[gi] = calculator.Summarize(g)
	}
	for _, sr := range summaryRows {
		tr := element(atom.Tr)
		for gi := range groups {
			tr.AppendChild(cell(atom.Td, sr.label, "style", style(summaryFill, cellTextColor, true)))
			tr.AppendChild(cell(atom.Td, sr.value(summaries[gi]), "style", style(summaryFill, cellTextColor, false)))
			buffer(tr, gi)
		}
		table.AppendChild(tr)
	}

	var out bytes.Buffer
	if err := html.Render(&out, table); err != nil {
		return "", fmt.Errorf("render groups table: %w", err)
	}
	return out.String(), nil
}

// HTMLToText parses the rows of every table in doc back into CSV text.
// Cells spanning several columns are followed by empty cells so columns
// stay aligned.
func HTMLToText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			b.WriteString(joinRow(rowCells(n)))
			b.WriteString("\n")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return b.String(), nil
}

func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		cells = append(cells, textContent(c))
		for i := 1; i < colspan(c); i++ {
			cells = append(cells, "")
		}
	}
	return cells
}

func colspan(n *html.Node) int {
	for _, a := range n.Attr {
		if a.Key == "colspan" {
			if v, err := strconv.Atoi(a.Val); err == nil && v > 0 {
				return v
			}
		}
	}
	return 1
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
