// Package classify assigns a coarse support category to an incoming ticket
// when the intake payload did not carry one. It is a keyword vote over the
// tokenized title and description, not a learned model.
package classify

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

const DefaultCategory = "general"

// categoryKeywords votes are counted per token, title tokens count double.
var categoryKeywords = map[string]string{
	"login":        "authentication",
	"password":     "authentication",
	"sso":          "authentication",
	"oauth":        "authentication",
	"2fa":          "authentication",
	"mfa":          "authentication",
	"locked":       "authentication",
	"billing":      "billing",
	"invoice":      "billing",
	"charge":       "billing",
	"charged":      "billing",
	"refund":       "billing",
	"payment":      "billing",
	"subscription": "billing",
	"card":         "billing",
	"api":          "api",
	"endpoint":     "api",
	"webhook":      "api",
	"token":        "api",
	"429":          "api",
	"timeout":      "api",
	"latency":      "performance",
	"slow":         "performance",
	"degraded":     "performance",
	"outage":       "performance",
	"down":         "performance",
	"500":          "performance",
	"error":        "performance",
	"crash":        "performance",
	"export":       "data",
	"import":       "data",
	"csv":          "data",
	"sync":         "data",
	"missing":      "data",
	"corrupted":    "data",
}

// SuggestCategory tokenizes the title and description and returns the
// category with the most keyword votes, or DefaultCategory when nothing
// matched or tokenization failed.
func SuggestCategory(title, description string) string {
	votes := map[string]int{}

	tally(votes, title, 2)
	tally(votes, description, 1)

	best := DefaultCategory
	bestVotes := 0
	for category, n := range votes {
		if n > bestVotes || (n == bestVotes && category < best && bestVotes > 0) {
			best = category
			bestVotes = n
		}
	}
	return best
}

func tally(votes map[string]int, text string, weight int) {
	if strings.TrimSpace(text) == "" {
		return
	}

	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithTagging(false))
	if err != nil {
		return
	}

	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		if category, ok := categoryKeywords[word]; ok {
			votes[category] += weight
		}
	}
}
