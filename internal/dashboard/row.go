package dashboard

import (
	"strconv"

	"github.com/jmagar/editcount/internal/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Cell and bar classes, part of the page's CSS contract
const (
	ClassNameCell     = "name-row"
	ClassProgressCell = "prog-row"
	ClassBarCell      = "bar-row"
	ClassEdited       = "edited"
	ClassDeleted      = "deleted"
)

// FormatRow builds a detached <tr> for one album. The album name is stored
// as a text node, so html.Render escapes it. Counts are not validated.
func FormatRow(a models.Album) *html.Node {
	row := newElement(atom.Tr)

	row.AppendChild(textCell(ClassNameCell, a.Album))
	row.AppendChild(textCell(ClassProgressCell, a.Progress()))

	bars := newElement(atom.Td, classAttr(ClassBarCell))
	bars.AppendChild(progressBar(ClassEdited, a.Total, a.Edited))
	bars.AppendChild(progressBar(ClassDeleted, a.Total, a.Deleted))
	row.AppendChild(bars)

	return row
}

func textCell(class, text string) *html.Node {
	td := newElement(atom.Td, classAttr(class))
	td.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return td
}

func progressBar(class string, max, value int) *html.Node {
	bar := newElement(atom.Progress, classAttr(class))
	setProgress(bar, max, value)
	return bar
}

func newElement(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func classAttr(class string) html.Attribute {
	return html.Attribute{Key: "class", Val: class}
}

// setProgress sets the max and value attributes of a progress element
func setProgress(n *html.Node, max, value int) {
	if n == nil {
		return
	}
	setAttr(n, "max", strconv.Itoa(max))
	setAttr(n, "value", strconv.Itoa(value))
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// setText replaces all children of n with a single text node
func setText(n *html.Node, text string) {
	if n == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
