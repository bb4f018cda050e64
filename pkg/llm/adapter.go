// Package llm provides the uniform provider adapter layer: each adapter
// translates a ModelInvocation into one HTTP call against a specific LLM
// backend and parses the response into an InvocationResult. Adapters are
// stateless; rate and concurrency policy live in the pacer wrapping them.
package llm

import (
	"net/http"
	"sort"
	"sync"

	"github.com/councilkit/council/pkg/models"
)

// Doer executes an HTTP request. The core never opens raw sockets; callers
// supply the transport (usually *http.Client).
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Completion is a parsed backend response before accounting fields are
// attached by the client.
type Completion struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// Adapter translates invocations for one provider family.
type Adapter interface {
	// ID returns the provider identifier (e.g. "openai", "gemini").
	ID() models.ProviderID

	// Defaults returns the provider's default model, completion budget,
	// and rate-limit configuration.
	Defaults() models.ProviderDefaults

	// BuildRequest constructs the HTTP request for one invocation. The
	// credential is injected into headers or the URL; it must never be
	// copied anywhere else.
	BuildRequest(inv models.ModelInvocation, credential string) (*http.Request, error)

	// ParseResponse extracts the completion from a 2xx response body.
	ParseResponse(body []byte) (*Completion, error)
}

// Registry holds the adapter set. Built-in families are installed by
// NewRegistry; new providers are added by Register.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ProviderID]Adapter
}

// NewRegistry creates a registry with the four built-in provider families.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[models.ProviderID]Adapter)}
	r.Register(NewOpenAIAdapter(""))
	r.Register(NewGeminiAdapter(""))
	r.Register(NewPerplexityAdapter(""))
	r.Register(NewKimiAdapter(""))
	return r
}

// Register installs or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// Get retrieves an adapter by provider id.
func (r *Registry) Get(id models.ProviderID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns the registered provider ids in lexical order.
func (r *Registry) IDs() []models.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]models.ProviderID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
