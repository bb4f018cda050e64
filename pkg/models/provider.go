package models

import "sync"

// ProviderID identifies one LLM backend family. The set is closed at build
// time but extensible by registration in the llm package.
type ProviderID string

const (
	ProviderOpenAI     ProviderID = "openai"
	ProviderGemini     ProviderID = "gemini"
	ProviderPerplexity ProviderID = "perplexity"
	ProviderKimi       ProviderID = "kimi"
)

// ProviderPriority is the fixed fallback order used when a role's canonical
// provider is unavailable. Candidates without credentials are skipped.
var ProviderPriority = []ProviderID{
	ProviderOpenAI,
	ProviderGemini,
	ProviderPerplexity,
	ProviderKimi,
}

// IsValid reports whether the provider is one of the built-in families.
// Registered extensions are validated by the llm registry instead.
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderGemini, ProviderPerplexity, ProviderKimi:
		return true
	}
	return false
}

// RateLimit configures a provider pacer: a token bucket of capacity Burst
// refilled at RPS tokens per second, plus a concurrency gate.
type RateLimit struct {
	RPS         float64 `yaml:"rps"`
	Burst       int     `yaml:"burst"`
	Concurrency int     `yaml:"concurrency"`
}

// ProviderDefaults carries the build-time defaults for one provider family.
type ProviderDefaults struct {
	ID                  ProviderID
	DefaultModel        string
	MaxCompletionTokens int
	RateLimit           RateLimit
}

// roleProvider maps each role to its canonical preferred provider.
var roleProvider = map[Role]ProviderID{
	RoleArchitect:    ProviderOpenAI,
	RoleDataEngineer: ProviderGemini,
	RoleResearcher:   ProviderPerplexity,
	RoleRedTeamer:    ProviderKimi,
	RoleOptimizer:    ProviderOpenAI,
	RoleSynthesizer:  ProviderGemini,
	RoleJudge:        ProviderOpenAI,
}

// CanonicalProvider returns the role's preferred provider family.
func (r Role) CanonicalProvider() ProviderID {
	return roleProvider[r]
}

// CredentialMap holds the opaque provider credentials of one run. Values
// are byte slices so they can be zeroed when the run completes; use Wipe
// rather than dropping the map on the floor. Safe for concurrent use: the
// Phase 1 fan-out shares one map across role goroutines, and a rejected
// credential is dropped while the others still read.
type CredentialMap struct {
	mu      sync.RWMutex
	secrets map[ProviderID][]byte
}

// NewCredentialMap copies caller-supplied credential strings into a wipeable
// map. Empty values are skipped.
func NewCredentialMap(creds map[string]string) *CredentialMap {
	m := &CredentialMap{secrets: make(map[ProviderID][]byte, len(creds))}
	for id, secret := range creds {
		if secret == "" {
			continue
		}
		m.secrets[ProviderID(id)] = []byte(secret)
	}
	return m
}

// Has reports whether a non-empty credential exists for the provider.
func (c *CredentialMap) Has(id ProviderID) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.secrets[id]) > 0
}

// Get returns the credential for the provider as a string, or "" if absent.
func (c *CredentialMap) Get(id ProviderID) string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return string(c.secrets[id])
}

// Len returns the number of providers holding a credential.
func (c *CredentialMap) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.secrets)
}

// Providers returns the ids currently holding a credential.
func (c *CredentialMap) Providers() []ProviderID {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ProviderID, 0, len(c.secrets))
	for id := range c.secrets {
		out = append(out, id)
	}
	return out
}

// Drop removes a provider's credential after zeroing it. Used when a backend
// rejects the credential as unauthorized.
func (c *CredentialMap) Drop(id ProviderID) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop(id)
}

// Wipe zeroes every credential value and empties the map.
func (c *CredentialMap) Wipe() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.secrets {
		c.drop(id)
	}
}

// drop zeroes and removes one entry. Caller holds the write lock.
func (c *CredentialMap) drop(id ProviderID) {
	if secret, ok := c.secrets[id]; ok {
		for i := range secret {
			secret[i] = 0
		}
		delete(c.secrets, id)
	}
}
