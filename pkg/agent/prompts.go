// Package agent executes single role invocations: provider selection,
// pacing, retry with fallback, and stage event emission.
package agent

import (
	"strings"

	"github.com/councilkit/council/pkg/models"
)

// PromptTemplate is the opaque system prompt for one role. The core treats
// prompt text as data; callers may supply their own table.
type PromptTemplate struct {
	System string
}

// PromptTable maps roles to their prompt templates.
type PromptTable map[models.Role]PromptTemplate

// DefaultPromptTable returns the built-in role prompts.
func DefaultPromptTable() PromptTable {
	return PromptTable{
		models.RoleArchitect: {System: "You are the council's systems architect. " +
			"Decompose the problem, name the components and their boundaries, and state the key trade-offs."},
		models.RoleDataEngineer: {System: "You are the council's data engineer. " +
			"Define the data model, storage and flow: schemas, consistency, retention, and migration concerns."},
		models.RoleResearcher: {System: "You are the council's researcher. " +
			"Ground the answer in prior art and current practice; cite concrete systems or papers where relevant."},
		models.RoleRedTeamer: {System: "You are the council's red teamer. " +
			"Attack the emerging design: failure modes, abuse cases, security and operational risks, with mitigations."},
		models.RoleOptimizer: {System: "You are the council's optimizer. " +
			"Identify the performance- and cost-critical paths and propose measurable improvements."},
		models.RoleSynthesizer: {System: "You are the council's synthesizer. " +
			"Merge the specialist perspectives into one coherent deliverable. Resolve conflicts explicitly; do not enumerate the specialists."},
		models.RoleJudge: {System: "You are the council's judge. " +
			"Review the synthesized deliverable against the stated goal and contract, correct defects, and produce the final artefact."},
	}
}

// qualityDirective is appended to system prompts when the run enables it.
const qualityDirective = "Honour the output contract exactly: include every required heading, " +
	"respect the lexicon lock, and do not open with a greeting unless the user did."

// BuildSystemPrompt renders the full system prompt for a role: template,
// context pack state block, and the optional quality directive.
func (t PromptTable) BuildSystemPrompt(role models.Role, pack models.ContextPack, withDirective bool) string {
	var b strings.Builder
	b.WriteString(t[role].System)
	b.WriteString("\n\n")
	b.WriteString(pack.Render())
	if withDirective {
		b.WriteString("\n")
		b.WriteString(qualityDirective)
	}
	return b.String()
}
