package dashboard

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmagar/editcount/internal/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element IDs of the page template
const (
	IDInProgress    = "table_ip"
	IDComplete      = "table_complete"
	IDEditedBar     = "totaledited"
	IDDeletedBar    = "totaldeleted"
	IDLabel         = "label"
	IDCountIP       = "count_ip"
	IDCountComplete = "count_complete"
	IDScanned       = "scanned"
	IDTitle         = "page-title"
	IDHeading       = "heading"
)

//go:embed templates/index.html
var pageTemplate string

// PageOptions controls the page chrome around the rendered rows
type PageOptions struct {
	Title     string
	ScannedAt time.Time
	// Now is used for the relative "scanned" time; zero means time.Now()
	Now time.Time
	// EventsURL enables live reload from a server-sent event stream
	EventsURL string
}

// MissingTargetError is returned when a document lacks a required element
type MissingTargetError struct {
	IDs []string
}

func (e *MissingTargetError) Error() string {
	return fmt.Sprintf("dashboard: document is missing elements: #%s", strings.Join(e.IDs, ", #"))
}

// ParsePage parses the embedded page template into a fresh document
func ParsePage() (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(pageTemplate))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	return doc, nil
}

// BindTargets looks up the five render targets in doc by element ID
func BindTargets(doc *html.Node) (Targets, error) {
	t := Targets{
		Complete:   FindByID(doc, IDComplete),
		InProgress: FindByID(doc, IDInProgress),
		EditedBar:  FindByID(doc, IDEditedBar),
		DeletedBar: FindByID(doc, IDDeletedBar),
		Label:      FindByID(doc, IDLabel),
	}

	var missing []string
	for id, n := range map[string]*html.Node{
		IDComplete:   t.Complete,
		IDInProgress: t.InProgress,
		IDEditedBar:  t.EditedBar,
		IDDeletedBar: t.DeletedBar,
		IDLabel:      t.Label,
	} {
		if n == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Targets{}, &MissingTargetError{IDs: missing}
	}

	return t, nil
}

// WritePage renders the groups into the page template and writes the document to w
func WritePage(w io.Writer, groups []models.Group, opts PageOptions) (models.Totals, error) {
	doc, err := ParsePage()
	if err != nil {
		return models.Totals{}, err
	}

	targets, err := BindTargets(doc)
	if err != nil {
		return models.Totals{}, err
	}

	totals := Render(groups, targets)

	setText(FindByID(doc, IDCountIP), strconv.Itoa(countRows(targets.InProgress)))
	setText(FindByID(doc, IDCountComplete), strconv.Itoa(countRows(targets.Complete)))

	if opts.Title != "" {
		setText(FindByID(doc, IDTitle), opts.Title)
		setText(FindByID(doc, IDHeading), opts.Title)
	}

	if !opts.ScannedAt.IsZero() {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		setText(FindByID(doc, IDScanned), fmt.Sprintf("Scanned %s (%s)",
			humanize.RelTime(opts.ScannedAt, now, "ago", "from now"),
			opts.ScannedAt.Format("2006-01-02 15:04:05")))
	}

	if opts.EventsURL != "" {
		if body := findFirst(doc, atom.Body); body != nil {
			setAttr(body, "data-events", opts.EventsURL)
		}
	}

	if err := html.Render(w, doc); err != nil {
		return totals, fmt.Errorf("failed to write page: %w", err)
	}
	return totals, nil
}

// FindByID returns the first element under n whose id attribute equals id
func FindByID(n *html.Node, id string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		if v, ok := getAttr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func countRows(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Tr {
			count++
		}
	}
	return count
}
