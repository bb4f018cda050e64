// Package classifier assigns a complexity level 1–5 to an incoming query.
// The heuristic path is pure and idempotent; an optional LLM assist may
// override it, but assist failure never fails the run.
package classifier

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/councilkit/council/pkg/contextpack"
)

// Source records which path produced the level.
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceAssist    Source = "llm_assist"
)

// Result is a classification outcome.
type Result struct {
	Level     int
	Rationale string
	Source    Source
}

// AssistFunc asks an LLM for a level and a self-reported confidence
// ("low", "medium", "high"). The assist result overrides the heuristic only
// when confidence is exactly "high"; anything else keeps the heuristic.
type AssistFunc func(ctx context.Context, query string) (level int, confidence string, rationale string, err error)

// Classifier computes complexity levels.
type Classifier struct {
	estimator contextpack.TokenEstimator
	assist    AssistFunc
}

// New creates a classifier. A nil estimator uses the default token
// estimator; a nil assist disables the LLM path.
func New(estimator contextpack.TokenEstimator, assist AssistFunc) *Classifier {
	if estimator == nil {
		estimator = contextpack.DefaultEstimator()
	}
	return &Classifier{estimator: estimator, assist: assist}
}

var (
	imperativeVerbs = []string{
		"prove", "design", "implement", "compare", "architect",
		"optimize", "optimise", "refactor", "derive", "migrate",
	}
	mathMarkers      = regexp.MustCompile(`[∑∫√≤≥≠±∂Δλθ]|\\(sum|int|frac|forall)`)
	referenceMarkers = regexp.MustCompile(`(?i)\b(cite|citation|references?|sources?|papers?)\b`)
)

// signals are the cheap features computed for every query.
type signals struct {
	tokens       int
	imperatives  int
	domainMarks  int
	subQuestions int
}

// points folds the signals into a single score for the level table.
func (s signals) points() int {
	p := 0
	switch {
	case s.tokens > 400:
		p += 2
	case s.tokens > 150:
		p++
	}
	if s.imperatives > 0 {
		p++
	}
	if s.domainMarks > 0 {
		p++
	}
	switch {
	case s.subQuestions >= 3:
		p += 2
	case s.subQuestions >= 2:
		p++
	}
	return p
}

// levelTable maps the folded signal score to a complexity level.
var levelTable = map[int]int{0: 1, 1: 2, 2: 3, 3: 4, 4: 5}

// Heuristic classifies the query without any LLM call. Pure: identical
// input always yields an identical result.
func (c *Classifier) Heuristic(query string) Result {
	s := c.extract(query)
	p := s.points()
	level, ok := levelTable[p]
	if !ok {
		level = 5
	}
	return Result{
		Level:     level,
		Rationale: rationale(s),
		Source:    SourceHeuristic,
	}
}

// Classify returns the heuristic level, letting the LLM assist override it
// only on a high-confidence answer. Assist errors fall back silently.
func (c *Classifier) Classify(ctx context.Context, query string) Result {
	heuristic := c.Heuristic(query)
	if c.assist == nil {
		return heuristic
	}

	level, confidence, assistRationale, err := c.assist(ctx, query)
	if err != nil {
		slog.Debug("Classifier assist failed, keeping heuristic", "error", err)
		return heuristic
	}
	if confidence != "high" || level < 1 || level > 5 {
		return heuristic
	}
	return Result{Level: level, Rationale: assistRationale, Source: SourceAssist}
}

func (c *Classifier) extract(query string) signals {
	lower := strings.ToLower(query)
	s := signals{tokens: c.estimator.CountTokens(query)}
	for _, verb := range imperativeVerbs {
		if containsWord(lower, verb) {
			s.imperatives++
		}
	}
	if strings.Contains(query, "```") || mathMarkers.MatchString(query) || referenceMarkers.MatchString(query) {
		s.domainMarks++
	}
	s.subQuestions = strings.Count(query, "?")
	return s
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func rationale(s signals) string {
	var parts []string
	if s.tokens > 150 {
		parts = append(parts, "long query")
	}
	if s.imperatives > 0 {
		parts = append(parts, "imperative task verbs")
	}
	if s.domainMarks > 0 {
		parts = append(parts, "domain markers")
	}
	if s.subQuestions >= 2 {
		parts = append(parts, "multiple sub-questions")
	}
	if len(parts) == 0 {
		return "short single-topic query"
	}
	return strings.Join(parts, ", ")
}
