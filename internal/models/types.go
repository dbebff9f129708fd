package models

import (
	"fmt"
	"time"
)

// Album holds the edit counts for a single album directory
type Album struct {
	Album   string `json:"album"`
	Edited  int    `json:"edited"`
	Deleted int    `json:"deleted"`
	Total   int    `json:"total"`
}

// IsComplete reports whether every remaining RAW of the album has been edited.
// The comparison is kept as edited == total - deleted; over-accounted albums
// (edited + deleted > total) are in progress.
func (a Album) IsComplete() bool {
	return a.Edited == a.Total-a.Deleted
}

// Progress formats the counts as "edited/deleted/total"
func (a Album) Progress() string {
	return FormatProgress(a.Edited, a.Deleted, a.Total)
}

// Group is an ordered collection of albums sharing a parent directory
type Group struct {
	Name   string  `json:"name,omitempty"`
	Albums []Album `json:"albums"`
}

// Totals aggregates album counts across groups
type Totals struct {
	Edited  int `json:"edited"`
	Deleted int `json:"deleted"`
	Total   int `json:"total"`
}

// Add accumulates the counts of a single album
func (t *Totals) Add(a Album) {
	t.Edited += a.Edited
	t.Deleted += a.Deleted
	t.Total += a.Total
}

// Progress formats the totals as "edited/deleted/total"
func (t Totals) Progress() string {
	return FormatProgress(t.Edited, t.Deleted, t.Total)
}

// SumGroups returns the totals of every album in every group
func SumGroups(groups []Group) Totals {
	var t Totals
	for _, g := range groups {
		for _, a := range g.Albums {
			t.Add(a)
		}
	}
	return t
}

// FormatProgress joins the three counts with slashes
func FormatProgress(edited, deleted, total int) string {
	return fmt.Sprintf("%d/%d/%d", edited, deleted, total)
}

// Snapshot is the result of the most recent successful scan
type Snapshot struct {
	Groups    []Group   `json:"groups"`
	Totals    Totals    `json:"totals"`
	ScannedAt time.Time `json:"scanned_at"`
}

// NewSnapshot builds a snapshot and computes its totals
func NewSnapshot(groups []Group, scannedAt time.Time) Snapshot {
	if groups == nil {
		groups = []Group{}
	}
	return Snapshot{
		Groups:    groups,
		Totals:    SumGroups(groups),
		ScannedAt: scannedAt,
	}
}

// ScanRun is a persisted record of one scan execution
type ScanRun struct {
	ID         int64      `json:"id"`
	JobID      string     `json:"job_id,omitempty"`
	Trigger    string     `json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Albums     int        `json:"albums"`
	Edited     int        `json:"edited"`
	Deleted    int        `json:"deleted"`
	Total      int        `json:"total"`
	Error      string     `json:"error,omitempty"`
}

// Scan triggers
const (
	TriggerStartup = "startup"
	TriggerAPI     = "api"
	TriggerWatcher = "watcher"
	TriggerCLI     = "cli"
)

// AlbumCount returns the number of albums across all groups
func (s Snapshot) AlbumCount() int {
	n := 0
	for _, g := range s.Groups {
		n += len(g.Albums)
	}
	return n
}
