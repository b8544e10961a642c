package classifier

// lexicon maps a lower-cased word to its polarity in [-1, 1].
// Values follow the adjective scores of the pattern/TextBlob English lexicon
// where the word exists there; task-tracker vocabulary (bug, outage, overdue)
// was added with conservative scores.
var lexicon = map[string]float64{
	// positive
	"amazing":         0.6,
	"awesome":         1.0,
	"beautiful":       0.85,
	"best":            1.0,
	"better":          0.5,
	"calm":            0.3,
	"celebrate":       0.5,
	"clean":           0.37,
	"congratulations": 0.5,
	"cool":            0.35,
	"easy":            0.43,
	"enjoy":           0.4,
	"enjoyable":       0.4,
	"excellent":       1.0,
	"excited":         0.375,
	"exciting":        0.3,
	"fantastic":       0.4,
	"fine":            0.42,
	"fresh":           0.3,
	"fun":             0.3,
	"glad":            0.5,
	"good":            0.7,
	"great":           0.8,
	"happy":           0.8,
	"healthy":         0.5,
	"helpful":         0.6,
	"improve":         0.3,
	"improved":        0.3,
	"interesting":     0.5,
	"love":            0.5,
	"lovely":          0.5,
	"nice":            0.6,
	"perfect":         1.0,
	"pleasant":        0.73,
	"positive":        0.23,
	"productive":      0.5,
	"ready":           0.2,
	"relaxing":        0.4,
	"resolved":        0.3,
	"safe":            0.5,
	"success":         0.3,
	"successful":      0.75,
	"thank":           0.2,
	"thanks":          0.2,
	"win":             0.8,
	"wonderful":       1.0,

	// negative
	"angry":        -0.5,
	"annoying":     -0.8,
	"awful":        -1.0,
	"bad":          -0.7,
	"blocked":      -0.3,
	"boring":       -1.0,
	"broken":       -0.4,
	"bug":          -0.4,
	"bugs":         -0.4,
	"complaint":    -0.4,
	"crash":        -0.5,
	"crashed":      -0.5,
	"critical":     -0.3,
	"dangerous":    -0.6,
	"delayed":      -0.3,
	"difficult":    -0.5,
	"dirty":        -0.6,
	"disappointed": -0.75,
	"error":        -0.4,
	"errors":       -0.4,
	"expensive":    -0.5,
	"fail":         -0.5,
	"failed":       -0.5,
	"failing":      -0.5,
	"failure":      -0.5,
	"frustrated":   -0.7,
	"frustrating":  -0.4,
	"hard":         -0.29,
	"hate":         -0.8,
	"horrible":     -1.0,
	"ill":          -0.5,
	"impossible":   -0.67,
	"issue":        -0.2,
	"issues":       -0.2,
	"late":         -0.3,
	"lost":         -0.2,
	"mess":         -0.4,
	"messy":        -0.4,
	"missing":      -0.2,
	"outage":       -0.6,
	"overdue":      -0.4,
	"pain":         -0.5,
	"painful":      -0.7,
	"poor":         -0.4,
	"problem":      -0.3,
	"problems":     -0.3,
	"sad":          -0.5,
	"scary":        -0.5,
	"sick":         -0.71,
	"slow":         -0.3,
	"stress":       -0.4,
	"stressful":    -0.6,
	"terrible":     -1.0,
	"tired":        -0.4,
	"ugly":         -0.7,
	"worried":      -0.5,
	"worse":        -0.4,
	"worst":        -1.0,
	"wrong":        -0.5,
}

// intensifiers scale the polarity of the lexicon word that follows them.
var intensifiers = map[string]float64{
	"absolutely": 1.5,
	"extremely":  1.5,
	"highly":     1.3,
	"incredibly": 1.5,
	"quite":      1.1,
	"really":     1.3,
	"slightly":   0.5,
	"somewhat":   0.7,
	"super":      1.3,
	"totally":    1.3,
	"very":       1.3,
}

var negations = map[string]bool{
	"never":   true,
	"no":      true,
	"nobody":  true,
	"nor":     true,
	"not":     true,
	"nothing": true,
	"without": true,
}

// passthrough words may sit between a modifier and the word it modifies.
var passthrough = map[string]bool{
	"a":   true,
	"an":  true,
	"the": true,
}

// negationFactor is applied to a lexicon word preceded by a negation.
const negationFactor = -0.5
