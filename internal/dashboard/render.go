// Package dashboard renders album edit progress into an HTML document tree.
package dashboard

import (
	"github.com/jmagar/editcount/internal/models"
	"golang.org/x/net/html"
)

// Targets are the document nodes a render writes to. Nil targets are skipped.
type Targets struct {
	Complete   *html.Node // rows of complete albums
	InProgress *html.Node // rows of albums still being edited
	EditedBar  *html.Node // summary progress of edited photos
	DeletedBar *html.Node // summary progress of deleted photos
	Label      *html.Node // "edited/deleted/total" summary text
}

// Render appends one row per album to the complete or in-progress container,
// in input order, then writes the grand totals to the summary bars and label.
// Input groups are never modified.
func Render(groups []models.Group, t Targets) models.Totals {
	var totals models.Totals

	for _, group := range groups {
		for _, album := range group.Albums {
			container := t.InProgress
			if album.IsComplete() {
				container = t.Complete
			}
			if container != nil {
				container.AppendChild(FormatRow(album))
			}

			totals.Add(album)
		}
	}

	setProgress(t.EditedBar, totals.Total, totals.Edited)
	setProgress(t.DeletedBar, totals.Total, totals.Deleted)
	setText(t.Label, totals.Progress())

	return totals
}
