// Package tokenize turns names, paths and file content into search tokens.
package tokenize

import (
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/length"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/character"
)

// MinTokenLength is the shortest token, in runes, that is kept.
const MinTokenLength = 3

var analyzer = &analysis.DefaultAnalyzer{
	Tokenizer: character.NewCharacterTokenizer(isAlphanumeric),
	TokenFilters: []analysis.TokenFilter{
		lowercase.NewLowerCaseFilter(),
		length.NewLengthFilter(MinTokenLength, 0),
	},
}

func isAlphanumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Tokenize lower-cases text, splits it on every non-alphanumeric rune and
// drops tokens shorter than MinTokenLength. Order and duplicates are kept.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	stream := analyzer.Analyze([]byte(text))
	if len(stream) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(stream))
	for _, token := range stream {
		tokens = append(tokens, string(token.Term))
	}
	return tokens
}
