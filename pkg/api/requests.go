package api

import (
	"github.com/councilkit/council/pkg/models"
)

// RunRequest is the body of POST /api/v1/runs and POST /api/v1/sessions.
type RunRequest struct {
	Query              string            `json:"query" binding:"required"`
	Credentials        map[string]string `json:"credentials" binding:"required"`
	OutputMode         string            `json:"output_mode"`
	ComplexityOverride int               `json:"complexity_override"`
	PreferredProviders map[string]string `json:"preferred_providers"`

	ContextPack            *ContextPackRequest `json:"context_pack"`
	EnableValidation       *bool               `json:"enable_validation"`
	EnableQualityDirective *bool               `json:"enable_quality_directive"`
	Deadlines              models.Deadlines    `json:"deadlines"`
	OrgScope               string              `json:"org_scope"`
}

// ContextPackRequest carries caller-supplied context pack fragments.
type ContextPackRequest struct {
	Goal            string                `json:"goal"`
	LockedDecisions []string              `json:"locked_decisions"`
	Glossary        []string              `json:"glossary"`
	OpenQuestions   []string              `json:"open_questions"`
	OutputContract  models.OutputContract `json:"output_contract"`
	StyleRules      []string              `json:"style_rules"`
	LexiconLock     models.LexiconLock    `json:"lexicon_lock"`
}

// ToRunInput converts the wire request to the engine input. Credentials
// are copied into a wipeable map.
func (r *RunRequest) ToRunInput() models.RunInput {
	input := models.RunInput{
		Query:                  r.Query,
		Credentials:            models.NewCredentialMap(r.Credentials),
		OutputMode:             models.OutputMode(r.OutputMode),
		ComplexityOverride:     r.ComplexityOverride,
		EnableValidation:       r.EnableValidation,
		EnableQualityDirective: r.EnableQualityDirective,
		Deadlines:              r.Deadlines,
		OrgScope:               r.OrgScope,
	}
	if len(r.PreferredProviders) > 0 {
		input.PreferredProviders = make(map[models.Role]models.ProviderID, len(r.PreferredProviders))
		for role, provider := range r.PreferredProviders {
			input.PreferredProviders[models.Role(role)] = models.ProviderID(provider)
		}
	}
	if r.ContextPack != nil {
		input.ContextPackFragments = &models.ContextPackFragments{
			Goal:            r.ContextPack.Goal,
			LockedDecisions: r.ContextPack.LockedDecisions,
			Glossary:        r.ContextPack.Glossary,
			OpenQuestions:   r.ContextPack.OpenQuestions,
			OutputContract:  r.ContextPack.OutputContract,
			StyleRules:      r.ContextPack.StyleRules,
			LexiconLock:     r.ContextPack.LexiconLock,
		}
	}
	return input
}
