// Package manifest tracks which school pages were built from which record
// content, so unchanged records can be skipped on the next build.
package manifest

import (
	"time"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/schools"
)

// Version is the manifest format version. Manifests with any other version
// are ignored.
const Version = 1

// FileName is the manifest's file name at the project root.
const FileName = ".build-manifest.json"

// Entry records one built page.
type Entry struct {
	Hash    string    `json:"hash" jsonschema:"description=Content hash of the record fields that affect the page"`
	BuiltAt time.Time `json:"builtAt"`
	Path    string    `json:"path" jsonschema:"description=Page path relative to the output root"`
}

// Manifest is the persisted record of a build.
type Manifest struct {
	Version   int              `json:"version" jsonschema:"const=1"`
	LastBuild time.Time        `json:"lastBuild"`
	BuildID   string           `json:"buildId,omitempty"`
	Records   map[string]Entry `json:"records" jsonschema:"description=Entries keyed by NPSN"`
}

// New returns an empty manifest of the current version.
func New(buildID string, at time.Time) *Manifest {
	return &Manifest{
		Version:   Version,
		LastBuild: at,
		BuildID:   buildID,
		Records:   make(map[string]Entry),
	}
}

// Key returns the manifest key of a record.
func Key(s schools.School) string {
	return s.NPSN
}

// DiffResult partitions records into those needing a rebuild and those
// whose previous page is still current.
type DiffResult struct {
	Changed   []schools.School
	Unchanged []schools.School
}

// Diff compares records with m. A nil manifest marks every record changed.
// Diff does no I/O.
func Diff(records []schools.School, m *Manifest) DiffResult {
	if m == nil || m.Records == nil {
		changed := make([]schools.School, len(records))
		copy(changed, records)
		return DiffResult{Changed: changed, Unchanged: []schools.School{}}
	}

	result := DiffResult{
		Changed:   make([]schools.School, 0),
		Unchanged: make([]schools.School, 0),
	}
	for _, s := range records {
		entry, ok := m.Records[Key(s)]
		if !ok || entry.Hash != ComputeHash(s) {
			result.Changed = append(result.Changed, s)
			continue
		}
		result.Unchanged = append(result.Unchanged, s)
	}
	return result
}

// Next builds the manifest for a finished build: entries of unchanged
// records are carried over from prev and every record in built gets a
// fresh entry with its page path.
func Next(prev *Manifest, buildID string, at time.Time, unchanged []schools.School, built map[string]Built) *Manifest {
	next := New(buildID, at)
	if prev != nil {
		for _, s := range unchanged {
			if entry, ok := prev.Records[Key(s)]; ok {
				next.Records[Key(s)] = entry
			}
		}
	}
	for key, b := range built {
		next.Records[key] = Entry{
			Hash:    b.Hash,
			BuiltAt: at,
			Path:    b.Path,
		}
	}
	return next
}

// Built describes a page written during the current build.
type Built struct {
	Hash string
	Path string
}
