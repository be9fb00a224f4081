package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kart-io/compliance-x/internal/compliance/store"
	"github.com/kart-io/compliance-x/pkg/llm"
)

// Capability errors.
var (
	ErrCapabilityNotFound = errors.New("capability not found")
	ErrCapabilityExists   = errors.New("capability already registered")
)

// CapabilityContext gives capabilities access to the service's resources,
// including the registry itself so one capability can delegate to another by
// name.
type CapabilityContext struct {
	Store    store.Factory
	Provider llm.ChatProvider
	History  *HistoryService

	registry *CapabilityRegistry
}

// Invoke runs a sibling capability by name.
func (cc *CapabilityContext) Invoke(ctx context.Context, name string, input map[string]any) (any, error) {
	if cc.registry == nil {
		return nil, ErrCapabilityNotFound
	}
	return cc.registry.Invoke(ctx, name, input)
}

// CapabilityFunc is one named, statically-compiled extension point. Inputs
// arrive as a decoded JSON object; the return value is serialized back to the
// caller.
type CapabilityFunc func(ctx context.Context, input map[string]any, cc *CapabilityContext) (any, error)

// CapabilityRegistry holds the named capabilities exposed over the API.
type CapabilityRegistry struct {
	mu           sync.RWMutex
	capabilities map[string]CapabilityFunc
	cc           *CapabilityContext
}

// NewCapabilityRegistry builds a registry with the built-in capabilities
// installed.
func NewCapabilityRegistry(cc *CapabilityContext) *CapabilityRegistry {
	r := &CapabilityRegistry{
		capabilities: make(map[string]CapabilityFunc),
		cc:           cc,
	}
	cc.registry = r
	r.capabilities["session_summary"] = sessionSummaryCapability
	return r
}

// Register installs a capability under a name.
func (r *CapabilityRegistry) Register(name string, fn CapabilityFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[name]; exists {
		return fmt.Errorf("%w: %s", ErrCapabilityExists, name)
	}
	r.capabilities[name] = fn
	return nil
}

// Invoke runs a capability by name.
func (r *CapabilityRegistry) Invoke(ctx context.Context, name string, input map[string]any) (any, error) {
	r.mu.RLock()
	fn, ok := r.capabilities[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
	}
	return fn(ctx, input, r.cc)
}

// List returns the registered capability names, sorted.
func (r *CapabilityRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const summarySystemPrompt = `You summarize compliance analysis results. ` +
	`Given the list of findings, write a short executive summary covering the ` +
	`overall compliance posture, the most severe issues and the themes across ` +
	`findings. Plain text, at most three paragraphs.`

// sessionSummaryCapability produces an executive summary of a session's
// findings via the chat provider.
func sessionSummaryCapability(ctx context.Context, input map[string]any, cc *CapabilityContext) (any, error) {
	sessionID, _ := input["session_id"].(string)
	if sessionID == "" {
		return nil, errors.New("session_id is required")
	}

	results, err := cc.History.GetResults(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if len(results.Issues) == 0 {
		return map[string]any{
			"session_id": sessionID,
			"summary":    "No findings were recorded for this analysis.",
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analysis status: %s, %d findings.\n\nFindings:\n", results.Status, len(results.Issues))
	for _, issue := range results.Issues {
		fmt.Fprintf(&b, "- [%s/%s] rule %s: %s\n", issue.Severity, issue.IssueType, issue.RuleNumber, issue.Description)
	}

	summary, err := cc.Provider.Generate(ctx, b.String(), summarySystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("summary generation failed: %w", err)
	}

	return map[string]any{
		"session_id": sessionID,
		"summary":    strings.TrimSpace(summary),
	}, nil
}
