package contextpack

import (
	"strings"

	"github.com/councilkit/council/pkg/models"
)

// DefaultTokenBudget is the serialized size cap of a built pack, in token
// equivalents.
const DefaultTokenBudget = 250

// maxGoalRunes bounds a goal derived from a raw query.
const maxGoalRunes = 240

// Builder produces ContextPacks under a token budget. Building is
// idempotent: the same fragments and query always yield the same pack.
type Builder struct {
	estimator TokenEstimator
	budget    int
}

// NewBuilder creates a builder with the given estimator and budget.
// A nil estimator uses the default; a non-positive budget uses
// DefaultTokenBudget.
func NewBuilder(estimator TokenEstimator, budget int) *Builder {
	if estimator == nil {
		estimator = DefaultEstimator()
	}
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	return &Builder{estimator: estimator, budget: budget}
}

// Build merges caller fragments into a pack, derives the goal from the raw
// query when missing, and truncates until the rendered pack fits the
// budget. Truncation drops the oldest open_questions first, then glossary
// entries, then style_rules.
func (b *Builder) Build(query string, fragments *models.ContextPackFragments, complexity int) models.ContextPack {
	pack := models.ContextPack{}
	if fragments != nil {
		pack.Goal = fragments.Goal
		pack.LockedDecisions = append([]string(nil), fragments.LockedDecisions...)
		pack.Glossary = append([]string(nil), fragments.Glossary...)
		pack.OpenQuestions = append([]string(nil), fragments.OpenQuestions...)
		pack.OutputContract = fragments.OutputContract
		pack.OutputContract.RequiredHeadings = append([]string(nil), fragments.OutputContract.RequiredHeadings...)
		pack.StyleRules = append([]string(nil), fragments.StyleRules...)
		pack.LexiconLock = fragments.LexiconLock
		pack.LexiconLock.AllowedTerms = append([]string(nil), fragments.LexiconLock.AllowedTerms...)
		pack.LexiconLock.ForbiddenTerms = append([]string(nil), fragments.LexiconLock.ForbiddenTerms...)
	}
	if pack.Goal == "" {
		pack.Goal = deriveGoal(query)
	}
	_ = complexity // reserved: complexity currently does not change pack content

	b.truncate(&pack)
	return pack
}

// truncate drops entries in the specified order until the rendered pack
// fits the budget. Goal, locked decisions, output contract, and lexicon
// lock are never truncated; they are the pack's contract.
func (b *Builder) truncate(pack *models.ContextPack) {
	for b.estimator.CountTokens(pack.Render()) > b.budget {
		switch {
		case len(pack.OpenQuestions) > 0:
			pack.OpenQuestions = pack.OpenQuestions[1:]
		case len(pack.Glossary) > 0:
			pack.Glossary = pack.Glossary[1:]
		case len(pack.StyleRules) > 0:
			pack.StyleRules = pack.StyleRules[1:]
		default:
			return
		}
	}
}

// deriveGoal condenses the raw query into a single-line goal.
func deriveGoal(query string) string {
	goal := strings.Join(strings.Fields(query), " ")
	runes := []rune(goal)
	if len(runes) > maxGoalRunes {
		goal = string(runes[:maxGoalRunes]) + "…"
	}
	return goal
}
