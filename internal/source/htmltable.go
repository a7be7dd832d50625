package source

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// parseResultsTable extracts rows from the first <table> carrying the given
// class attribute. Returned rows are cell-text slices with whitespace
// collapsed. HTML-backed venues render results as plain tables; anything
// fancier goes through the browser adapter instead.
func parseResultsTable(body []byte, tableClass string) [][]string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	table := findTable(doc, tableClass)
	if table == nil {
		return nil
	}

	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if cells := rowCells(n); len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return rows
}

func findTable(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && n.Data == "table" {
		if class == "" || hasClass(n, class) {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTable(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, strings.Join(strings.Fields(nodeText(c)), " "))
		}
	}
	// Header rows are all <th>; skip them by convention of the callers
	// checking the first data column.
	return cells
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
