package intent

import (
	"math"
	"regexp"
	"strings"
)

var horizonRe = regexp.MustCompile(`\b(next|coming|upcoming) (\d+|few|couple of) (days|weeks|months|years|seasons)\b|\b(this|next|coming) (season|year)\b`)

// LocalComplexity scores how strongly a query asks for multi-topic planning.
//
//	0.35 × min(planning terms, 2)/2
//	0.40 × min(distinct topic categories, 3)/3
//	0.25 × min(words / maxWords, 1)
//	+0.1 for a time horizon or coordination marker
//
// capped at 1.0.
func LocalComplexity(query string, maxWords int) float64 {
	if maxWords <= 0 {
		maxWords = 25
	}
	processed := Preprocess(query)
	words := strings.Fields(processed)
	if len(words) == 0 {
		return 0
	}

	padded := " " + processed + " "
	planning := 0
	for _, term := range planningTerms {
		if strings.Contains(padded, " "+term+" ") {
			planning++
		}
	}

	topics := 0
	for _, l := range lexicon {
		if l.category == GeneralFarming {
			continue
		}
		if matchesAny(processed, l.keywords) || matchesAny(processed, l.phrases) {
			topics++
		}
	}

	score := 0.35*math.Min(float64(planning), 2)/2 +
		0.40*math.Min(float64(topics), 3)/3 +
		0.25*math.Min(float64(len(words))/float64(maxWords), 1)

	if horizonRe.MatchString(processed) || matchesAny(processed, coordinationMarkers) {
		score += 0.1
	}
	return math.Min(score, 1.0)
}

func matchesAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
