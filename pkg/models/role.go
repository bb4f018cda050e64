// Package models defines the shared domain types for the council
// orchestrator: roles, providers, invocations, sessions, phase records,
// context packs, quality scores, and the closed error-kind taxonomy.
package models

// Role identifies one council perspective. The set is closed: the first
// five are the Phase 1 specialists, synthesizer and judge run sequentially
// in Phases 2 and 3.
type Role string

const (
	RoleArchitect    Role = "architect"
	RoleDataEngineer Role = "data_engineer"
	RoleResearcher   Role = "researcher"
	RoleRedTeamer    Role = "red_teamer"
	RoleOptimizer    Role = "optimizer"
	RoleSynthesizer  Role = "synthesizer"
	RoleJudge        Role = "judge"
)

// SpecialistRoles lists the five roles fanned out in Phase 1, in a stable
// order used for transcripts and candidate iteration.
var SpecialistRoles = []Role{
	RoleArchitect,
	RoleDataEngineer,
	RoleResearcher,
	RoleRedTeamer,
	RoleOptimizer,
}

// IsValid reports whether the role is a member of the closed set.
func (r Role) IsValid() bool {
	switch r {
	case RoleArchitect, RoleDataEngineer, RoleResearcher,
		RoleRedTeamer, RoleOptimizer, RoleSynthesizer, RoleJudge:
		return true
	}
	return false
}

// IsSpecialist reports whether the role participates in the Phase 1 fan-out.
func (r Role) IsSpecialist() bool {
	switch r {
	case RoleArchitect, RoleDataEngineer, RoleResearcher,
		RoleRedTeamer, RoleOptimizer:
		return true
	}
	return false
}

// AbstractPhase is one of the five public pipeline stages projected from
// the internal three-phase scheduler.
type AbstractPhase string

const (
	PhaseUnderstand   AbstractPhase = "understand"
	PhaseResearch     AbstractPhase = "research"
	PhaseReasonRefine AbstractPhase = "reason_refine"
	PhaseCrosscheck   AbstractPhase = "crosscheck"
	PhaseSynthesize   AbstractPhase = "synthesize"
)

// AbstractPhases is the ordered public phase sequence. Indexes into this
// slice are the step_index values carried on phase events.
var AbstractPhases = []AbstractPhase{
	PhaseUnderstand,
	PhaseResearch,
	PhaseReasonRefine,
	PhaseCrosscheck,
	PhaseSynthesize,
}

// roleToPhase is the fixed public projection from internal roles to
// abstract phases. The three reason/refine specialists coalesce into a
// single visible phase.
var roleToPhase = map[Role]AbstractPhase{
	RoleArchitect:    PhaseUnderstand,
	RoleResearcher:   PhaseResearch,
	RoleDataEngineer: PhaseReasonRefine,
	RoleOptimizer:    PhaseReasonRefine,
	RoleRedTeamer:    PhaseReasonRefine,
	RoleSynthesizer:  PhaseCrosscheck,
	RoleJudge:        PhaseSynthesize,
}

// Phase returns the abstract phase this role is projected onto.
func (r Role) Phase() AbstractPhase {
	return roleToPhase[r]
}

// StepIndex returns the 0-based position of the phase in the public
// sequence, or -1 for an unknown phase.
func (p AbstractPhase) StepIndex() int {
	for i, phase := range AbstractPhases {
		if phase == p {
			return i
		}
	}
	return -1
}

// IsValid reports whether the phase is a member of the public sequence.
func (p AbstractPhase) IsValid() bool {
	return p.StepIndex() >= 0
}
