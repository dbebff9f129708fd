// Package report turns a scan snapshot into terminal, CSV, JSON, HTML or
// legacy JavaScript output.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jmagar/editcount/internal/dashboard"
	"github.com/jmagar/editcount/internal/models"
)

const (
	FormatTerminal = "terminal"
	FormatHTML     = "html"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatJS       = "js"
)

const (
	SortNone       = "none"
	SortAlbum      = "album"
	SortCompletion = "completion"
	SortRemaining  = "remaining"
)

var (
	Formats   = []string{FormatTerminal, FormatHTML, FormatJSON, FormatCSV, FormatJS}
	SortModes = []string{SortNone, SortAlbum, SortCompletion, SortRemaining}
)

type Row struct {
	Group         string  `json:"group"`
	Album         string  `json:"album"`
	Edited        int     `json:"edited"`
	Deleted       int     `json:"deleted"`
	Total         int     `json:"total"`
	Remaining     int     `json:"remaining"`
	Complete      bool    `json:"complete"`
	CompletionPct float64 `json:"completion_pct"`
}

type Summary struct {
	Albums            int           `json:"albums"`
	Complete          int           `json:"complete"`
	InProgress        int           `json:"in_progress"`
	Totals            models.Totals `json:"totals"`
	OverallCompletion float64       `json:"overall_completion"`
	ScannedAt         time.Time     `json:"scanned_at"`
}

type Report struct {
	Summary Summary `json:"summary"`
	Rows    []Row   `json:"rows"`
}

// CompletionPct is the share of RAWs that need no more work: edited or deleted
func CompletionPct(edited, deleted, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(edited+deleted) / float64(total) * 100
}

// Build flattens a snapshot into rows in scan order
func Build(snapshot models.Snapshot) Report {
	r := Report{
		Rows: []Row{},
		Summary: Summary{
			Totals:    snapshot.Totals,
			ScannedAt: snapshot.ScannedAt,
		},
	}

	for _, g := range snapshot.Groups {
		for _, a := range g.Albums {
			row := Row{
				Group:         g.Name,
				Album:         a.Album,
				Edited:        a.Edited,
				Deleted:       a.Deleted,
				Total:         a.Total,
				Remaining:     a.Total - a.Deleted - a.Edited,
				Complete:      a.IsComplete(),
				CompletionPct: CompletionPct(a.Edited, a.Deleted, a.Total),
			}
			if row.Complete {
				r.Summary.Complete++
			} else {
				r.Summary.InProgress++
			}
			r.Rows = append(r.Rows, row)
		}
	}

	r.Summary.Albums = len(r.Rows)
	r.Summary.OverallCompletion = CompletionPct(snapshot.Totals.Edited, snapshot.Totals.Deleted, snapshot.Totals.Total)
	return r
}

// Sort orders rows in place. Ties keep scan order.
func Sort(rows []Row, by string) error {
	var less func(a, b Row) bool
	switch by {
	case SortNone, "":
		return nil
	case SortAlbum:
		less = func(a, b Row) bool {
			if a.Group != b.Group {
				return a.Group < b.Group
			}
			return a.Album < b.Album
		}
	case SortCompletion:
		// Least complete first
		less = func(a, b Row) bool { return a.CompletionPct < b.CompletionPct }
	case SortRemaining:
		// Most work left first
		less = func(a, b Row) bool { return a.Remaining > b.Remaining }
	default:
		return fmt.Errorf("unknown sort %q (want one of %s)", by, strings.Join(SortModes, ", "))
	}

	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	return nil
}

// Options for Write
type Options struct {
	Format string
	Sort   string
	Title  string
	// Now is used for relative times; zero means time.Now()
	Now time.Time
}

// Write renders the snapshot in the requested format
func Write(w io.Writer, snapshot models.Snapshot, opts Options) error {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	r := Build(snapshot)
	if err := Sort(r.Rows, opts.Sort); err != nil {
		return err
	}

	// html and js keep scan order, like the dashboard
	switch opts.Format {
	case FormatHTML:
		_, err := dashboard.WritePage(w, snapshot.Groups, dashboard.PageOptions{
			Title:     opts.Title,
			ScannedAt: snapshot.ScannedAt,
			Now:       opts.Now,
		})
		return err
	case FormatJS:
		return WriteJS(w, snapshot.Groups)
	case FormatTerminal, "":
		return WriteTerminal(w, r, opts.Title, opts.Now)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatCSV:
		return WriteCSV(w, r)
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", opts.Format, strings.Join(Formats, ", "))
	}
}

func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Group", "Album", "Edited", "Deleted", "Total", "Remaining", "Complete", "Completion %"}); err != nil {
		return err
	}

	for _, row := range r.Rows {
		record := []string{
			row.Group,
			row.Album,
			strconv.Itoa(row.Edited),
			strconv.Itoa(row.Deleted),
			strconv.Itoa(row.Total),
			strconv.Itoa(row.Remaining),
			strconv.FormatBool(row.Complete),
			strconv.FormatFloat(row.CompletionPct, 'f', 1, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// legacyGroup is the group shape of the original photo_data.js file
type legacyGroup struct {
	Year   string         `json:"year"`
	Albums []models.Album `json:"albums"`
}

// WriteJS writes the data file consumed by the static dashboard: var data=[...];
func WriteJS(w io.Writer, groups []models.Group) error {
	legacy := make([]legacyGroup, 0, len(groups))
	for _, g := range groups {
		albums := g.Albums
		if albums == nil {
			albums = []models.Album{}
		}
		legacy = append(legacy, legacyGroup{Year: g.Name, Albums: albums})
	}

	data, err := json.Marshal(legacy)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "var data=%s;", data)
	return err
}

func WriteTerminal(w io.Writer, r Report, title string, now time.Time) error {
	if title == "" {
		title = "Edit progress"
	}

	// Colour support is detected on w, so files and pipes get plain text
	renderer := lipgloss.NewRenderer(w)
	titleStyle := renderer.NewStyle().Bold(true)
	completeStyle := renderer.NewStyle().Foreground(lipgloss.Color("2"))
	inProgressStyle := renderer.NewStyle().Foreground(lipgloss.Color("3"))

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(title))
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 50))
	if !r.Summary.ScannedAt.IsZero() {
		fmt.Fprintf(&b, "Scanned:      %s\n", humanize.RelTime(r.Summary.ScannedAt, now, "ago", "from now"))
	}
	fmt.Fprintf(&b, "Albums:       %d (%d complete, %d in progress)\n", r.Summary.Albums, r.Summary.Complete, r.Summary.InProgress)
	fmt.Fprintf(&b, "Edited:       %s\n", humanize.Comma(int64(r.Summary.Totals.Edited)))
	fmt.Fprintf(&b, "Deleted:      %s\n", humanize.Comma(int64(r.Summary.Totals.Deleted)))
	fmt.Fprintf(&b, "Total:        %s\n", humanize.Comma(int64(r.Summary.Totals.Total)))
	fmt.Fprintf(&b, "Completion:   %.1f%%\n", r.Summary.OverallCompletion)
	b.WriteString("\n")

	for _, row := range r.Rows {
		status := inProgressStyle.Render("in progress")
		if row.Complete {
			status = completeStyle.Render("complete")
		}

		name := row.Album
		if row.Group != "" {
			name = row.Group + "/" + row.Album
		}
		fmt.Fprintf(&b, "%-40s %-14s %5.1f%%  %s\n",
			name,
			models.FormatProgress(row.Edited, row.Deleted, row.Total),
			row.CompletionPct,
			status)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
