// Package scanner compares RAW source folders against edited output folders
// and produces per-album edit counts.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jmagar/editcount/internal/models"
	"go.uber.org/zap"
)

// DefaultRawExtensions are the camera RAW formats counted when none are configured
var DefaultRawExtensions = []string{"NEF", "CR2", "DNG"}

// History remembers every RAW stem ever seen for an album
type History interface {
	Record(ctx context.Context, group, album string, stems []string) ([]string, error)
}

type Scanner struct {
	SourceDir  string
	DestDir    string
	RawPattern *regexp.Regexp
	// History may be nil, in which case removed RAWs are forgotten
	History History
	Logger  *zap.Logger
}

func New(sourceDir, destDir string, rawPattern *regexp.Regexp, history History, logger *zap.Logger) *Scanner {
	if rawPattern == nil {
		rawPattern = RawPattern(DefaultRawExtensions)
	}
	if logger == nil {
		logger = zap.L()
	}

	return &Scanner{
		SourceDir:  sourceDir,
		DestDir:    destDir,
		RawPattern: rawPattern,
		History:    history,
		Logger:     logger,
	}
}

// RawPattern builds a case-insensitive matcher for file names ending in one of
// the given extensions. A leading dot on an extension is ignored.
func RawPattern(extensions []string) *regexp.Regexp {
	quoted := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			quoted = append(quoted, regexp.QuoteMeta(ext))
		}
	}
	if len(quoted) == 0 {
		return RawPattern(DefaultRawExtensions)
	}

	return regexp.MustCompile(`(?i)\.(` + strings.Join(quoted, "|") + `)$`)
}

// Scan walks <source>/<group>/<album> and returns one group per directory
func (s *Scanner) Scan(ctx context.Context) ([]models.Group, error) {
	groupNames, err := listDirs(s.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	groups := make([]models.Group, 0, len(groupNames))
	for _, groupName := range groupNames {
		albumNames, err := listDirs(filepath.Join(s.SourceDir, groupName))
		if err != nil {
			s.Logger.Warn("Skipping unreadable group", zap.String("group", groupName), zap.Error(err))
			continue
		}

		group := models.Group{Name: groupName, Albums: []models.Album{}}
		for _, albumName := range albumNames {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			album, err := s.scanAlbum(ctx, groupName, albumName)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.Logger.Warn("Skipping album",
					zap.String("group", groupName),
					zap.String("album", albumName),
					zap.Error(err))
				continue
			}
			group.Albums = append(group.Albums, album)
		}

		groups = append(groups, group)
	}

	return groups, nil
}

func (s *Scanner) scanAlbum(ctx context.Context, group, album string) (models.Album, error) {
	raws, err := s.rawStems(filepath.Join(s.SourceDir, group, album))
	if err != nil {
		return models.Album{}, fmt.Errorf("failed to list raw files: %w", err)
	}

	edits, err := editStems(filepath.Join(s.DestDir, group, album))
	if err != nil {
		return models.Album{}, fmt.Errorf("failed to list edited files: %w", err)
	}

	stems := make([]string, 0, len(raws))
	for name := range raws {
		stems = append(stems, name)
	}
	sort.Strings(stems)

	// Without a history only the RAWs present now are counted
	history := stems
	if s.History != nil {
		history, err = s.History.Record(ctx, group, album, stems)
		if err != nil {
			return models.Album{}, fmt.Errorf("failed to update history: %w", err)
		}
	}

	return Count(album, history, raws, edits), nil
}

// Count classifies every stem in history. Stems no longer present as RAW are
// deleted; present stems with a matching edit are edited.
func Count(album string, history []string, raws, edits map[string]bool) models.Album {
	result := models.Album{Album: album, Total: len(history)}
	for _, stem := range history {
		switch {
		case !raws[stem]:
			result.Deleted++
		case edits[stem]:
			result.Edited++
		}
	}
	return result
}

func (s *Scanner) rawStems(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	stems := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !s.RawPattern.MatchString(entry.Name()) {
			continue
		}
		stems[stem(entry.Name())] = true
	}
	return stems, nil
}

// editStems collects stems of files in dir and in its direct subdirectories.
// A missing dir has no edits.
func editStems(dir string) (map[string]bool, error) {
	stems := make(map[string]bool)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return stems, nil
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			stems[stem(entry.Name())] = true
			continue
		}

		subEntries, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		for _, sub := range subEntries {
			if !sub.IsDir() {
				stems[stem(sub.Name())] = true
			}
		}
	}
	return stems, nil
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// listDirs returns the names, sorted by os.ReadDir, of the directories directly inside dir
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
