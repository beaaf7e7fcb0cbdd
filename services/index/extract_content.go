package index

import (
	"fmt"
	"io"
	"os"
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/meghashyamc/homeindex/db"
	"github.com/meghashyamc/homeindex/services/tokenize"
)

const (
	// MaxExtractableBytes is the ceiling for reading content, independent of
	// the policy's MaxFileSizeBytes. Files must be strictly smaller.
	MaxExtractableBytes = 1 << 20

	MaxKeywords = 20
)

// fileID is stable for a path so reindexing yields the same identifier.
func fileID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
}

func shouldExtract(isText bool, size int64, maxFileSizeBytes int64) bool {
	return isText && size <= maxFileSizeBytes && size < MaxExtractableBytes
}

// newIndexedFile classifies entry and, when allowed, fills in its content
// and keywords. Read failures are returned alongside the metadata-only record.
func newIndexedFile(entry Entry, maxFileSizeBytes int64) (db.IndexedFile, error) {
	fileType, isText := Classify(entry.Path)
	file := db.IndexedFile{
		ID:      fileID(entry.Path),
		Path:    entry.Path,
		Name:    entry.Name,
		Type:    fileType,
		Size:    entry.Size,
		ModTime: entry.ModTime,
	}

	if !shouldExtract(isText, entry.Size, maxFileSizeBytes) {
		return file, nil
	}

	content, keywords, err := extractContent(entry.Path)
	if err != nil {
		return file, err
	}
	file.Content = content
	file.Keywords = keywords

	return file, nil
}

// extractContent reads path as UTF-8 text. Content that is not valid UTF-8
// yields no content and no error.
func extractContent(path string) (string, []string, error) {
	data, err := readTextFile(path)
	if err != nil {
		return "", nil, err
	}

	if !utf8.Valid(data) {
		return "", nil, nil
	}

	content := string(data)
	return content, extractKeywords(content), nil
}

func readTextFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	// The file may have grown since it was stat'ed.
	data, err := io.ReadAll(io.LimitReader(file, MaxExtractableBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

// extractKeywords returns up to MaxKeywords tokens of content by descending
// frequency. Equal frequencies keep first-occurrence order.
func extractKeywords(content string) []string {
	tokens := tokenize.Tokenize(content)
	if len(tokens) == 0 {
		return nil
	}

	counts := make(map[string]int)
	var ordered []string
	for _, token := range tokens {
		if counts[token] == 0 {
			ordered = append(ordered, token)
		}
		counts[token]++
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return counts[ordered[i]] > counts[ordered[j]]
	})

	if len(ordered) > MaxKeywords {
		ordered = ordered[:MaxKeywords]
	}

	return ordered
}
