// Package masking redacts provider credentials and credential-shaped
// strings from logs and persisted artefacts.
package masking

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// MaskedValue replaces every match.
const MaskedValue = "[REDACTED]"

// CompiledPattern holds a pre-compiled regex with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns covers the key formats of the supported providers plus
// generic bearer/authorization shapes.
var builtinPatterns = map[string]string{
	"openai_key":    `sk-[A-Za-z0-9_-]{20,}`,
	"google_key":    `AIza[0-9A-Za-z_-]{35}`,
	"bearer_token":  `(?i)bearer\s+[A-Za-z0-9._~+/=-]{16,}`,
	"api_key_field": `(?i)(api[_-]?key["':=\s]+)[A-Za-z0-9._~+/=-]{16,}`,
}

// Service applies masking. Created once at startup; thread-safe. Literal
// credential values registered per run are masked in addition to the
// pattern set.
type Service struct {
	patterns []*CompiledPattern

	mu       sync.RWMutex
	literals map[string]struct{}
}

// NewService compiles the built-in patterns plus any extra ones. Invalid
// extras are logged and skipped.
func NewService(extra map[string]string) *Service {
	s := &Service{literals: make(map[string]struct{})}
	compile := func(name, pattern, replacement string) {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", name, "error", err)
			return
		}
		s.patterns = append(s.patterns, &CompiledPattern{
			Name: name, Regex: compiled, Replacement: replacement,
		})
	}
	for name, pattern := range builtinPatterns {
		replacement := MaskedValue
		if name == "api_key_field" {
			replacement = "${1}" + MaskedValue
		}
		compile(name, pattern, replacement)
	}
	for name, pattern := range extra {
		compile(name, pattern, MaskedValue)
	}
	return s
}

// RegisterLiteral masks an exact credential value wherever it appears.
// Short values are ignored; masking them would leak their length class.
func (s *Service) RegisterLiteral(value string) {
	if len(value) < 8 {
		return
	}
	s.mu.Lock()
	s.literals[value] = struct{}{}
	s.mu.Unlock()
}

// ForgetLiteral removes a registered credential value after its run ends.
func (s *Service) ForgetLiteral(value string) {
	s.mu.Lock()
	delete(s.literals, value)
	s.mu.Unlock()
}

// Mask redacts all registered literals and pattern matches.
func (s *Service) Mask(data string) string {
	if data == "" {
		return data
	}
	s.mu.RLock()
	for literal := range s.literals {
		data = strings.ReplaceAll(data, literal, MaskedValue)
	}
	s.mu.RUnlock()
	for _, p := range s.patterns {
		data = p.Regex.ReplaceAllString(data, p.Replacement)
	}
	return data
}
