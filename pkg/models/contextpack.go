package models

import (
	"fmt"
	"strings"
)

// OutputContract pins the shape of the final artefact: headings that must
// appear, an optional exact code/file block count, and an optional format
// hint ("markdown", "plain").
type OutputContract struct {
	RequiredHeadings []string `json:"required_headings,omitempty"`
	FileCount        *int     `json:"file_count,omitempty"`
	Format           string   `json:"format,omitempty"`
}

// LexiconLock is the allowed/forbidden term set enforced by quality Gate B.
// When Strict, every allowed term must appear in the output at least once.
type LexiconLock struct {
	AllowedTerms   []string `json:"allowed_terms,omitempty"`
	ForbiddenTerms []string `json:"forbidden_terms,omitempty"`
	Strict         bool     `json:"strict,omitempty"`
}

// ContextPack is the canonical, size-bounded state block injected into
// every agent invocation. Immutable once built; the builder enforces the
// token budget by truncation.
type ContextPack struct {
	Goal            string         `json:"goal"`
	LockedDecisions []string       `json:"locked_decisions,omitempty"`
	Glossary        []string       `json:"glossary,omitempty"`
	OpenQuestions   []string       `json:"open_questions,omitempty"`
	OutputContract  OutputContract `json:"output_contract"`
	StyleRules      []string       `json:"style_rules,omitempty"`
	LexiconLock     LexiconLock    `json:"lexicon_lock"`
}

// ContextPackFragments are caller-supplied partial fields merged into the
// built pack. Zero values mean "not supplied".
type ContextPackFragments struct {
	Goal            string
	LockedDecisions []string
	Glossary        []string
	OpenQuestions   []string
	OutputContract  OutputContract
	StyleRules      []string
	LexiconLock     LexiconLock
}

// Render serializes the pack as the state block text injected into agent
// system prompts. Sections with no content are omitted.
func (p *ContextPack) Render() string {
	var b strings.Builder
	b.WriteString("## Council State\n")
	fmt.Fprintf(&b, "Goal: %s\n", p.Goal)
	writeList(&b, "Locked decisions", p.LockedDecisions)
	writeList(&b, "Glossary", p.Glossary)
	writeList(&b, "Open questions", p.OpenQuestions)
	if len(p.OutputContract.RequiredHeadings) > 0 {
		fmt.Fprintf(&b, "Required headings: %s\n", strings.Join(p.OutputContract.RequiredHeadings, "; "))
	}
	if p.OutputContract.FileCount != nil {
		fmt.Fprintf(&b, "File count: %d\n", *p.OutputContract.FileCount)
	}
	if p.OutputContract.Format != "" {
		fmt.Fprintf(&b, "Format: %s\n", p.OutputContract.Format)
	}
	writeList(&b, "Style rules", p.StyleRules)
	if len(p.LexiconLock.AllowedTerms) > 0 {
		fmt.Fprintf(&b, "Allowed terms: %s\n", strings.Join(p.LexiconLock.AllowedTerms, ", "))
	}
	if len(p.LexiconLock.ForbiddenTerms) > 0 {
		fmt.Fprintf(&b, "Forbidden terms: %s\n", strings.Join(p.LexiconLock.ForbiddenTerms, ", "))
	}
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
