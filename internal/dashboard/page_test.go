package dashboard

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmagar/editcount/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestWritePage(t *testing.T) {
	groups := []models.Group{{Albums: []models.Album{
		{Album: "X", Edited: 2, Deleted: 0, Total: 2},
		{Album: "Y", Edited: 1, Deleted: 1, Total: 4},
	}}}

	scanned := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	totals, err := WritePage(&buf, groups, PageOptions{
		Title:     "Wedding <2018>",
		ScannedAt: scanned,
		Now:       scanned.Add(3 * time.Minute),
		EventsURL: "/api/v1/events",
	})
	require.NoError(t, err)
	assert.Equal(t, models.Totals{Edited: 3, Deleted: 1, Total: 6}, totals)

	doc, err := html.Parse(strings.NewReader(buf.String()))
	require.NoError(t, err)

	complete := FindByID(doc, IDComplete)
	inProgress := FindByID(doc, IDInProgress)
	require.NotNil(t, complete)
	require.NotNil(t, inProgress)
	assert.Equal(t, []string{"X"}, rowNames(complete))
	assert.Equal(t, []string{"Y"}, rowNames(inProgress))

	assert.Equal(t, "3/1/6", FindByID(doc, IDLabel).FirstChild.Data)
	assert.Equal(t, "6", attr(FindByID(doc, IDEditedBar), "max"))
	assert.Equal(t, "3", attr(FindByID(doc, IDEditedBar), "value"))
	assert.Equal(t, "1", attr(FindByID(doc, IDDeletedBar), "value"))

	assert.Equal(t, "1", FindByID(doc, IDCountComplete).FirstChild.Data)
	assert.Equal(t, "1", FindByID(doc, IDCountIP).FirstChild.Data)
	assert.Equal(t, "Wedding <2018>", FindByID(doc, IDHeading).FirstChild.Data)
	assert.Contains(t, buf.String(), "Wedding &lt;2018&gt;")
	assert.Contains(t, FindByID(doc, IDScanned).FirstChild.Data, "3 minutes ago")
	assert.Contains(t, buf.String(), `data-events="/api/v1/events"`)
}

func TestWritePage_Empty(t *testing.T) {
	var buf bytes.Buffer
	totals, err := WritePage(&buf, nil, PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.Totals{}, totals)

	doc, err := html.Parse(&buf)
	require.NoError(t, err)

	assert.Nil(t, FindByID(doc, IDComplete).FirstChild)
	assert.Nil(t, FindByID(doc, IDInProgress).FirstChild)
	assert.Equal(t, "0/0/0", FindByID(doc, IDLabel).FirstChild.Data)
	assert.Equal(t, "0", attr(FindByID(doc, IDEditedBar), "max"))
	assert.Equal(t, "Not scanned yet", FindByID(doc, IDScanned).FirstChild.Data)
}

func TestBindTargets_MissingElements(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><body><table><tbody id="table_ip"></tbody></table><span id="label"></span></body></html>`))
	require.NoError(t, err)

	_, err = BindTargets(doc)
	require.Error(t, err)

	var missing *MissingTargetError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{IDComplete, IDDeletedBar, IDEditedBar}, missing.IDs)
}

func TestParsePage_FreshDocumentEachTime(t *testing.T) {
	first, err := ParsePage()
	require.NoError(t, err)
	targets, err := BindTargets(first)
	require.NoError(t, err)
	Render([]models.Group{{Albums: []models.Album{{Album: "X", Total: 1}}}}, targets)

	second, err := ParsePage()
	require.NoError(t, err)
	assert.Nil(t, FindByID(second, IDInProgress).FirstChild)
}
