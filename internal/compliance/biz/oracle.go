package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/compliance-x/internal/model"
	"github.com/kart-io/compliance-x/pkg/llm"
	"github.com/kart-io/compliance-x/pkg/utils/json"
)

// ClassificationOracle maps a paragraph to the rule numbers that may apply,
// given the catalog of candidate rules.
type ClassificationOracle interface {
	Classify(ctx context.Context, paragraph string, catalog []model.RuleDigest) ([]string, error)
}

// ComplianceOracle produces findings for a paragraph against the full texts
// of the rules classified as applicable.
type ComplianceOracle interface {
	Analyze(ctx context.Context, paragraph string, rules []*model.Rule) ([]Finding, error)
}

// Finding is one issue reported by the compliance oracle.
type Finding struct {
	RuleNumber     string  `json:"rule_number"`
	Severity       string  `json:"severity"`
	IssueType      string  `json:"issue_type"`
	Description    string  `json:"description"`
	CurrentText    *string `json:"current_text,omitempty"`
	RequiredText   *string `json:"required_text,omitempty"`
	SuggestedFix   *string `json:"suggested_fix,omitempty"`
	HighlightStart *int    `json:"highlight_start,omitempty"`
	HighlightEnd   *int    `json:"highlight_end,omitempty"`
}

const classifySystemPrompt = `You are a regulatory compliance classifier. ` +
	`Given a document paragraph and a catalog of rules, identify which rules ` +
	`could apply to the paragraph. Respond with a JSON array of rule number ` +
	`strings, for example ["R-1.2","R-7"]. Respond with [] when no rule ` +
	`applies. Output only JSON.`

const analyzeSystemPrompt = `You are a regulatory compliance analyst. ` +
	`Examine the paragraph against each rule text and report issues as a JSON ` +
	`array of objects with fields: rule_number, severity (critical, high, ` +
	`medium, low, success), issue_type (compliant, missing, inadequate, ` +
	`outdated, violation), description, and optionally current_text, ` +
	`required_text, suggested_fix, highlight_start, highlight_end. Use ` +
	`severity "success" with issue_type "compliant" for rules the paragraph ` +
	`satisfies. Respond with [] when there is nothing to report. Output only ` +
	`JSON.`

// ChatOracle implements both oracles on a chat provider.
type ChatOracle struct {
	provider llm.ChatProvider
}

// NewChatOracle builds an oracle backed by the given provider.
func NewChatOracle(provider llm.ChatProvider) *ChatOracle {
	return &ChatOracle{provider: provider}
}

// Classify asks the model which catalog rules could apply to the paragraph.
// The result is filtered against the catalog so hallucinated numbers never
// reach storage.
func (o *ChatOracle) Classify(ctx context.Context, paragraph string, catalog []model.RuleDigest) ([]string, error) {
	var b strings.Builder
	b.WriteString("Rule catalog:\n")
	for _, d := range catalog {
		fmt.Fprintf(&b, "- %s: %s", d.Number, d.Title)
		if d.Summary != "" {
			fmt.Fprintf(&b, " | %s", d.Summary)
		}
		if d.Category != "" {
			fmt.Fprintf(&b, " [%s]", d.Category)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nParagraph:\n")
	b.WriteString(paragraph)

	reply, err := o.provider.Generate(ctx, b.String(), classifySystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}

	var numbers []string
	if err := json.Unmarshal([]byte(extractJSON(reply)), &numbers); err != nil {
		return nil, fmt.Errorf("failed to parse classification reply: %w", err)
	}

	known := make(map[string]struct{}, len(catalog))
	for _, d := range catalog {
		known[d.Number] = struct{}{}
	}

	filtered := make([]string, 0, len(numbers))
	seen := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if _, ok := known[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		filtered = append(filtered, n)
	}

	return filtered, nil
}

// Analyze asks the model for findings against the resolved rule texts.
func (o *ChatOracle) Analyze(ctx context.Context, paragraph string, rules []*model.Rule) ([]Finding, error) {
	var b strings.Builder
	b.WriteString("Rules:\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "## %s: %s\n%s\n\n", r.RuleNumber, r.RuleTitle, r.RuleText)
	}
	b.WriteString("Paragraph:\n")
	b.WriteString(paragraph)

	reply, err := o.provider.Generate(ctx, b.String(), analyzeSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("compliance analysis request failed: %w", err)
	}

	var findings []Finding
	if err := json.Unmarshal([]byte(extractJSON(reply)), &findings); err != nil {
		return nil, fmt.Errorf("failed to parse compliance reply: %w", err)
	}

	for i := range findings {
		normalizeFinding(&findings[i])
	}

	return findings, nil
}

// extractJSON strips markdown code fences and surrounding prose so the reply
// parses even when the model decorates its output.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)

	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '[' {
		end = strings.LastIndex(s, "]")
	} else {
		end = strings.LastIndex(s, "}")
	}
	if end > start {
		return s[start : end+1]
	}
	return s
}

func normalizeFinding(f *Finding) {
	f.Severity = strings.ToLower(strings.TrimSpace(f.Severity))
	switch f.Severity {
	case model.SeverityCritical, model.SeverityHigh, model.SeverityMedium,
		model.SeverityLow, model.SeveritySuccess:
	default:
		f.Severity = model.SeverityMedium
	}

	f.IssueType = strings.ToLower(strings.TrimSpace(f.IssueType))
	switch f.IssueType {
	case model.IssueCompliant, model.IssueMissing, model.IssueInadequate,
		model.IssueOutdated, model.IssueViolation:
	default:
		if f.Severity == model.SeveritySuccess {
			f.IssueType = model.IssueCompliant
		} else {
			f.IssueType = model.IssueViolation
		}
	}
}
