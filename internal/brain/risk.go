package brain

import "strings"

// AlertLevel grades how urgently a user turn needs human escalation.
type AlertLevel string

const (
	AlertGreen  AlertLevel = "green"
	AlertYellow AlertLevel = "yellow"
	AlertOrange AlertLevel = "orange"
	AlertRed    AlertLevel = "red"
)

// Assessment is the outcome of screening one user turn. This is a fast
// lexical screen that errs toward flagging; it is not a clinical judgment.
type Assessment struct {
	Level    AlertLevel `json:"level"`
	Category string     `json:"category,omitempty"`
	Matched  string     `json:"matched,omitempty"`
}

// Crisis reports whether the turn needs the crisis resource card attached
// to the reply.
func (a Assessment) Crisis() bool {
	return a.Level == AlertOrange || a.Level == AlertRed
}

// CrisisResource is one hotline surfaced alongside high-risk replies.
type CrisisResource struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// CrisisResources lists Indonesian crisis lines, highest priority first.
func CrisisResources() []CrisisResource {
	return []CrisisResource{
		{Name: "Layanan darurat", Number: "112"},
		{Name: "Pencegahan bunuh diri (Kemenkes)", Number: "119 ext 8"},
		{Name: "Krisis kesehatan mental", Number: "500-454"},
		{Name: "Layanan krisis perempuan", Number: "021-7270005"},
	}
}

// riskLexicon pairs keyword categories with alert levels. Phrases are
// matched as lowercase substrings; Indonesian first, English variants for
// mixed-language input.
var riskLexicon = []struct {
	category string
	level    AlertLevel
	phrases  []string
}{
	{
		category: "suicidal_ideation",
		level:    AlertRed,
		phrases: []string{
			"bunuh diri", "mengakhiri hidup", "tidak ingin hidup", "ingin mati",
			"lebih baik mati", "mau mati saja",
			"kill myself", "end my life", "want to die", "suicide",
		},
	},
	{
		category: "self_harm",
		level:    AlertOrange,
		phrases: []string{
			"melukai diri", "menyakiti diri", "menyilet", "melukai tubuh",
			"hurt myself", "cut myself", "self harm",
		},
	},
	{
		category: "harm_to_others",
		level:    AlertOrange,
		phrases: []string{
			"melukai orang", "menyakiti orang lain", "membunuh orang",
			"hurt someone", "kill someone",
		},
	},
	{
		category: "acute_distress",
		level:    AlertYellow,
		phrases: []string{
			"tidak sanggup lagi", "putus asa", "tidak ada harapan", "menyerah",
			"hopeless", "can't go on", "give up on everything",
		},
	},
}

// RiskClassifier screens user turns against the crisis lexicon.
type RiskClassifier struct{}

func NewRiskClassifier() *RiskClassifier { return &RiskClassifier{} }

// Assess returns the highest alert level matched in text. Levels do not
// accumulate; the first red match wins outright.
func (c *RiskClassifier) Assess(text string) Assessment {
	lowered := strings.ToLower(text)
	best := Assessment{Level: AlertGreen}
	for _, entry := range riskLexicon {
		for _, phrase := range entry.phrases {
			if !strings.Contains(lowered, phrase) {
				continue
			}
			if severity(entry.level) > severity(best.Level) {
				best = Assessment{Level: entry.level, Category: entry.category, Matched: phrase}
			}
			if best.Level == AlertRed {
				return best
			}
		}
	}
	return best
}

func severity(l AlertLevel) int {
	switch l {
	case AlertRed:
		return 3
	case AlertOrange:
		return 2
	case AlertYellow:
		return 1
	default:
		return 0
	}
}
