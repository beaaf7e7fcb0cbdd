// Package search holds the inverted index over indexed files and the
// ranked keyword search served from it.
package search

import (
	"os"
	"sort"
	"strings"

	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/services/tokenize"
)

const DefaultSearchLimit = 50

// Index maps tokens to the paths of the files they came from. An Index is
// never modified after Build returns, so it is safe for concurrent readers.
type Index struct {
	files        map[string]db.IndexedFile
	postings     map[string]map[string]struct{}
	sortedTokens []string
}

// Build indexes the tokens of each file's name, path segments and keywords.
func Build(files map[string]db.IndexedFile) *Index {
	index := &Index{
		files:    make(map[string]db.IndexedFile, len(files)),
		postings: make(map[string]map[string]struct{}),
	}

	for path, file := range files {
		index.files[path] = file

		index.add(path, file.Name)
		for _, segment := range strings.Split(path, string(os.PathSeparator)) {
			index.add(path, segment)
		}
		for _, keyword := range file.Keywords {
			index.add(path, keyword)
		}
	}

	index.sortedTokens = make([]string, 0, len(index.postings))
	for token := range index.postings {
		index.sortedTokens = append(index.sortedTokens, token)
	}
	sort.Strings(index.sortedTokens)

	return index
}

func (i *Index) add(path string, text string) {
	for _, token := range tokenize.Tokenize(text) {
		paths, ok := i.postings[token]
		if !ok {
			paths = make(map[string]struct{})
			i.postings[token] = paths
		}
		paths[path] = struct{}{}
	}
}

// Search scores every path +1 for each query token it holds exactly and +1
// for each other indexed token it holds that contains, or is contained in,
// a query token. Results are ordered by score, then path.
func (i *Index) Search(query string, limit int) []db.IndexedFile {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryTokens := tokenize.Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	scores := make(map[string]int)
	for _, queryToken := range queryTokens {
		for path := range i.postings[queryToken] {
			scores[path]++
		}

		for _, token := range i.sortedTokens {
			if token == queryToken {
				continue
			}
			if strings.Contains(token, queryToken) || strings.Contains(queryToken, token) {
				for path := range i.postings[token] {
					scores[path]++
				}
			}
		}
	}

	if len(scores) == 0 {
		return nil
	}

	paths := make([]string, 0, len(scores))
	for path := range scores {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(a, b int) bool {
		if scores[paths[a]] != scores[paths[b]] {
			return scores[paths[a]] > scores[paths[b]]
		}
		return paths[a] < paths[b]
	})

	if len(paths) > limit {
		paths = paths[:limit]
	}

	results := make([]db.IndexedFile, 0, len(paths))
	for _, path := range paths {
		results = append(results, i.files[path])
	}

	return results
}

// Files returns every indexed file ordered by path.
func (i *Index) Files() []db.IndexedFile {
	files := make([]db.IndexedFile, 0, len(i.files))
	for _, file := range i.files {
		files = append(files, file)
	}
	sort.Slice(files, func(a, b int) bool { return files[a].Path < files[b].Path })

	return files
}

func (i *Index) File(path string) (db.IndexedFile, bool) {
	file, ok := i.files[path]
	return file, ok
}

func (i *Index) Len() int {
	return len(i.files)
}

// Tokens returns every indexed token in sorted order.
func (i *Index) Tokens() []string {
	return append([]string(nil), i.sortedTokens...)
}

// Paths returns the sorted paths holding token.
func (i *Index) Paths(token string) []string {
	paths := make([]string, 0, len(i.postings[token]))
	for path := range i.postings[token] {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}
