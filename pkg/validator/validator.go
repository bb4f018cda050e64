// Package validator applies the deterministic quality gates to a run's
// final artefact and produces the scored report. The validator never
// modifies the artefact; callers decide what a failed gate means.
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/councilkit/council/pkg/models"
)

// Dimension weights for the overall score.
const (
	weightSubstance    = 0.30
	weightCompleteness = 0.30
	weightDepth        = 0.20
	weightAccuracy     = 0.20
)

// Gate pass thresholds.
const (
	passOverall   = 7.0
	passDimension = 5.0
)

var (
	greetingRe = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|greetings|good (morning|afternoon|evening))\b`)
	stepRe     = regexp.MustCompile(`(?m)^\s*(\d+[.)]\s|[-*]\s)`)
	headingRe  = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*$`)
	fenceRe    = regexp.MustCompile("(?m)^```")
)

// domainRequirements maps context-pack goal keywords to terms the final
// artefact must mention (Gate E).
var domainRequirements = map[string][]string{
	"incident":  {"severity", "escalation", "roles"},
	"migration": {"rollback", "backup"},
}

// Validator scores one artefact per run.
type Validator struct{}

// New returns a validator.
func New() *Validator { return &Validator{} }

// Validate applies gates A–E and returns the scored report. query is the
// user's raw query (Gate A), pack supplies the lexicon lock, output
// contract and goal, output is the final artefact.
func (v *Validator) Validate(query string, pack models.ContextPack, output string) models.QualityScore {
	var (
		violations []string
		hardGates  = true // A, B and C must all pass for the gate
	)
	substance, completeness, depth, accuracy := 10.0, 10.0, 10.0, 10.0

	// Gate A: no unsolicited greeting.
	if !greetingRe.MatchString(query) && greetingRe.MatchString(output) {
		violations = append(violations, "persona:greeting")
		substance -= 2
		hardGates = false
	}

	// Gate B: lexicon lock.
	for _, term := range pack.LexiconLock.ForbiddenTerms {
		if containsTerm(output, term) {
			violations = append(violations, "lexicon:forbidden:"+term)
			accuracy -= 2
			hardGates = false
		}
	}
	if pack.LexiconLock.Strict {
		for _, term := range pack.LexiconLock.AllowedTerms {
			if !containsTerm(output, term) {
				violations = append(violations, "lexicon:missing:"+term)
				accuracy -= 1
				hardGates = false
			}
		}
	}

	// Gate C: output contract.
	headings := extractHeadings(output)
	for _, required := range pack.OutputContract.RequiredHeadings {
		if !hasHeading(headings, required) {
			violations = append(violations, "contract:heading:"+required)
			completeness -= 2
			hardGates = false
		}
	}
	if want := pack.OutputContract.FileCount; want != nil {
		if got := countFencedBlocks(output); got != *want {
			violations = append(violations, fmt.Sprintf("contract:file_count:want=%d:got=%d", *want, got))
			completeness -= 2
			hardGates = false
		}
	}

	// Gate D: structural completeness heuristics.
	if len(headings) == 0 {
		violations = append(violations, "completeness:no_heading")
		completeness -= 2
		depth -= 1
	}
	if !stepRe.MatchString(output) {
		violations = append(violations, "completeness:no_steps")
		depth -= 3
	}
	for _, dup := range adjacentDuplicates(headings) {
		violations = append(violations, "completeness:duplicate_section:"+dup)
		completeness -= 1
		depth -= 2
	}

	// Gate E: domain completeness activated by goal keywords.
	goal := strings.ToLower(pack.Goal)
	for keyword, required := range domainRequirements {
		if !strings.Contains(goal, keyword) {
			continue
		}
		for _, term := range required {
			if !containsTerm(output, term) {
				violations = append(violations, "domain:"+keyword+":missing:"+term)
				substance -= 1
				depth -= 1
			}
		}
	}

	substance = clampScore(substance)
	completeness = clampScore(completeness)
	depth = clampScore(depth)
	accuracy = clampScore(accuracy)
	overall := weightSubstance*substance + weightCompleteness*completeness +
		weightDepth*depth + weightAccuracy*accuracy

	return models.QualityScore{
		Substance:    substance,
		Completeness: completeness,
		Depth:        depth,
		Accuracy:     accuracy,
		Overall:      overall,
		GatePassed: hardGates && overall >= passOverall &&
			substance >= passDimension && completeness >= passDimension &&
			depth >= passDimension && accuracy >= passDimension,
		Violations: violations,
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

// containsTerm reports a word-boundary, case-insensitive occurrence of term
// in text. Boundaries are any rune that is not a letter or digit.
func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	lowerText := strings.ToLower(text)
	lowerTerm := strings.ToLower(term)
	for start := 0; ; {
		idx := strings.Index(lowerText[start:], lowerTerm)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(lowerTerm)
		if boundaryBefore(lowerText, idx) && boundaryAfter(lowerText, end) {
			return true
		}
		start = idx + 1
	}
}

func boundaryBefore(s string, idx int) bool {
	if idx == 0 {
		return true
	}
	r := []rune(s[:idx])
	return !isWordRune(r[len(r)-1])
}

func boundaryAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	r := []rune(s[end:])
	return !isWordRune(r[0])
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func extractHeadings(output string) []string {
	matches := headingRe.FindAllStringSubmatch(output, -1)
	headings := make([]string, 0, len(matches))
	for _, m := range matches {
		headings = append(headings, strings.TrimSpace(m[1]))
	}
	return headings
}

func hasHeading(headings []string, required string) bool {
	for _, h := range headings {
		if strings.EqualFold(h, strings.TrimSpace(required)) {
			return true
		}
	}
	return false
}

// countFencedBlocks counts closed ``` fences; an unterminated fence does
// not count as a block.
func countFencedBlocks(output string) int {
	return len(fenceRe.FindAllString(output, -1)) / 2
}

func adjacentDuplicates(headings []string) []string {
	var dups []string
	for i := 1; i < len(headings); i++ {
		if strings.EqualFold(headings[i], headings[i-1]) {
			dups = append(dups, headings[i])
		}
	}
	return dups
}
