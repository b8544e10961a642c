// Package classifier derives a category and a sentiment label from task text.
// Everything here is pure: no I/O, no shared state, no error path.
package classifier

import (
	"strings"
	"unicode"

	"github.com/ricirt/task-insights/internal/domain"
)

// Polarity thresholds. Scores exactly on a threshold are neutral.
const (
	positiveThreshold = 0.1
	negativeThreshold = -0.1
)

// Keyword sets, checked in this order: the first set with a hit wins.
var (
	urgentKeywords   = []string{"urgent", "asap", "important", "critical", "emergency", "immediately", "priority"}
	workKeywords     = []string{"work", "meeting", "project", "deadline", "report", "email", "client", "business"}
	personalKeywords = []string{"home", "family", "personal", "buy", "shopping", "health", "exercise", "doctor"}
)

// Classify analyses the combined title and description.
func Classify(title, description string) domain.Classification {
	text := title + ". " + description
	p := Polarity(text)
	return domain.Classification{
		Category:  Categorize(text),
		Sentiment: Label(p),
		Polarity:  p,
	}
}

// Categorize matches keywords by substring containment on the lower-cased
// text, so "asap" also matches inside a longer word.
func Categorize(text string) domain.Category {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, urgentKeywords):
		return domain.CategoryUrgent
	case containsAny(lower, workKeywords):
		return domain.CategoryWork
	case containsAny(lower, personalKeywords):
		return domain.CategoryPersonal
	}
	return domain.CategoryGeneral
}

// Label maps a polarity score onto a sentiment.
func Label(polarity float64) domain.Sentiment {
	switch {
	case polarity > positiveThreshold:
		return domain.SentimentPositive
	case polarity < negativeThreshold:
		return domain.SentimentNegative
	}
	return domain.SentimentNeutral
}

// Polarity returns the mean polarity of the lexicon words in text, in [-1, 1].
// Text without any lexicon word scores 0.
//
// A negation before a lexicon word multiplies its score by -0.5 and an
// intensifier multiplies it by the intensifier's weight. Modifiers reach
// across articles ("not a good idea") but are dropped by any other word.
func Polarity(text string) float64 {
	var (
		sum    float64
		n      int
		factor = 1.0
	)
	for _, tok := range tokenize(text) {
		if score, ok := lexicon[tok]; ok {
			sum += clamp(score * factor)
			n++
			factor = 1.0
			continue
		}
		switch {
		case isNegation(tok):
			factor *= negationFactor
		case intensifiers[tok] != 0:
			factor *= intensifiers[tok]
		case passthrough[tok]:
		default:
			factor = 1.0
		}
	}
	if n == 0 {
		return 0
	}
	return clamp(sum / float64(n))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func isNegation(tok string) bool {
	return negations[tok] || strings.HasSuffix(tok, "n't")
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
