package intent

import (
	"math"
	"regexp"
	"strings"
)

var (
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Preprocess lowercases the query, replaces punctuation with spaces and
// collapses whitespace.
func Preprocess(query string) string {
	s := strings.ToLower(query)
	s = nonWordRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ExtractEntities returns the first known crop and location found in the
// processed query. No disambiguation is attempted.
func ExtractEntities(processed string) (crop, location string) {
	for _, c := range crops {
		if strings.Contains(processed, c) {
			crop = c
			break
		}
	}
	for _, l := range locations {
		if strings.Contains(processed, l) {
			location = l
			break
		}
	}
	return crop, location
}

// scoreEntry applies the weighted keyword/phrase matcher to a processed query.
func scoreEntry(processed string, words int, e entry) (float64, []string) {
	if words == 0 {
		return 0, nil
	}
	var score float64
	var matched []string
	for _, p := range e.phrases {
		if strings.Contains(processed, p) {
			score += 0.3
			matched = append(matched, p)
		}
	}
	for _, k := range e.keywords {
		if strings.Contains(processed, k) {
			score += 0.1
			matched = append(matched, k)
		}
	}
	return math.Min(score/float64(words)*10, 1.0), matched
}

// ClassifyLocal runs the keyword matcher. A best score under 0.1 defaults to
// GeneralFarming rather than Unknown.
func ClassifyLocal(query string) Classification {
	processed := Preprocess(query)
	words := len(strings.Fields(processed))
	crop, location := ExtractEntities(processed)

	best := Unknown
	bestScore := 0.0
	var bestMatched []string
	for _, l := range lexicon {
		score, matched := scoreEntry(processed, words, l.entry)
		if score > bestScore {
			best, bestScore, bestMatched = l.category, score, matched
		}
	}
	if bestScore < 0.1 {
		best = GeneralFarming
	}

	if bestMatched == nil {
		bestMatched = []string{}
	}
	return Classification{
		Category:        best,
		Confidence:      bestScore,
		KeywordsMatched: bestMatched,
		Crop:            crop,
		Location:        location,
		Model:           "keyword_based",
		Provider:        "local",
	}
}
