package discovery

import (
	"sort"

	"frago/internal/runstore"
)

// defaultThreshold and defaultBestMatchThreshold mirror the run discovery
// matcher's two call sites: a looser bar for browsing candidates, a
// stricter one for auto-resuming a run without confirmation.
const (
	defaultThreshold          = 60
	defaultBestMatchThreshold = 80
	defaultMaxResults         = 5
)

// Match is one run candidate scored against a task description.
type Match struct {
	Run        runstore.RunSummary
	Similarity int
}

// Finder discovers run instances whose theme description resembles a task
// description the caller is about to start or resume.
type Finder struct {
	Manager *runstore.Manager
}

// NewFinder builds a Finder over manager.
func NewFinder(manager *runstore.Manager) *Finder {
	return &Finder{Manager: manager}
}

// DiscoverSimilarRuns scores every run against taskDescription and returns
// the ones at or above threshold, sorted by similarity descending, then by
// last-accessed time descending, capped at maxResults. A threshold <= 0
// uses the default (60); a maxResults <= 0 uses the default (5).
func (f *Finder) DiscoverSimilarRuns(taskDescription string, threshold, maxResults int) ([]Match, error) {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	runs, err := f.Manager.ListRuns(nil)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, run := range runs {
		similarity := BestRatio(taskDescription, run.ThemeDescription)
		if similarity >= threshold {
			matches = append(matches, Match{Run: run, Similarity: similarity})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Run.LastAccessed.After(matches[j].Run.LastAccessed)
	})

	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

// FindBestMatch returns the single highest-similarity run at or above
// threshold (default 80, deliberately stricter than DiscoverSimilarRuns'
// default), or ok=false if nothing clears the bar.
func (f *Finder) FindBestMatch(taskDescription string, threshold int) (Match, bool, error) {
	if threshold <= 0 {
		threshold = defaultBestMatchThreshold
	}
	matches, err := f.DiscoverSimilarRuns(taskDescription, threshold, 1)
	if err != nil {
		return Match{}, false, err
	}
	if len(matches) == 0 {
		return Match{}, false, nil
	}
	return matches[0], true, nil
}
