package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/compliance-x/internal/model"
	"github.com/kart-io/compliance-x/pkg/llm"
)

type scriptedProvider struct {
	reply string
	err   error
	// lastPrompt captures the user prompt for assertions.
	lastPrompt string
}

func (p *scriptedProvider) Chat(_ context.Context, messages []llm.Message) (string, error) {
	if len(messages) > 0 {
		p.lastPrompt = messages[len(messages)-1].Content
	}
	return p.reply, p.err
}

func (p *scriptedProvider) Generate(_ context.Context, prompt, _ string) (string, error) {
	p.lastPrompt = prompt
	return p.reply, p.err
}

func (p *scriptedProvider) Name() string { return "scripted" }

var testCatalog = []model.RuleDigest{
	{Number: "R-1", Title: "Recordkeeping", Summary: "Retention rules", Category: "recordkeeping"},
	{Number: "R-2", Title: "Reporting", Summary: "Notification duties", Category: "reporting"},
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{
			name:  "plain array",
			reply: `["R-1"]`,
			want:  []string{"R-1"},
		},
		{
			name:  "fenced reply",
			reply: "```json\n[\"R-1\", \"R-2\"]\n```",
			want:  []string{"R-1", "R-2"},
		},
		{
			name:  "prose around the array",
			reply: "The applicable rules are: [\"R-2\"] based on the content.",
			want:  []string{"R-2"},
		},
		{
			name:  "hallucinated numbers dropped",
			reply: `["R-1", "R-99", "X-5"]`,
			want:  []string{"R-1"},
		},
		{
			name:  "duplicates collapsed",
			reply: `["R-1", "R-1", " R-1 "]`,
			want:  []string{"R-1"},
		},
		{
			name:  "empty array",
			reply: `[]`,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{reply: tt.reply}
			oracle := NewChatOracle(provider)

			got, err := oracle.Classify(context.Background(), "paragraph text", testCatalog)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, provider.lastPrompt, "R-1: Recordkeeping")
			assert.Contains(t, provider.lastPrompt, "paragraph text")
		})
	}
}

func TestClassifyMalformedReply(t *testing.T) {
	oracle := NewChatOracle(&scriptedProvider{reply: "I cannot help with that."})
	_, err := oracle.Classify(context.Background(), "text", testCatalog)
	assert.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	reply := `[
		{"rule_number":"R-1","severity":"HIGH","issue_type":"missing","description":"No retention period."},
		{"rule_number":"R-2","severity":"nonsense","issue_type":"weird","description":"Normalized."},
		{"rule_number":"R-2","severity":"success","issue_type":"","description":"Satisfied."}
	]`
	oracle := NewChatOracle(&scriptedProvider{reply: reply})

	rules := []*model.Rule{
		{RuleNumber: "R-1", RuleTitle: "Recordkeeping", RuleText: "Records shall be retained."},
		{RuleNumber: "R-2", RuleTitle: "Reporting", RuleText: "Incidents shall be reported."},
	}

	findings, err := oracle.Analyze(context.Background(), "paragraph", rules)
	require.NoError(t, err)
	require.Len(t, findings, 3)

	assert.Equal(t, model.SeverityHigh, findings[0].Severity)
	assert.Equal(t, model.IssueMissing, findings[0].IssueType)

	// Unknown values fall back to defaults.
	assert.Equal(t, model.SeverityMedium, findings[1].Severity)
	assert.Equal(t, model.IssueViolation, findings[1].IssueType)

	// Success findings default to compliant.
	assert.Equal(t, model.SeveritySuccess, findings[2].Severity)
	assert.Equal(t, model.IssueCompliant, findings[2].IssueType)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"bare array", `["a"]`, `["a"]`},
		{"fenced with language", "```json\n[1,2]\n```", "[1,2]"},
		{"fenced without language", "```\n{\"k\":1}\n```", `{"k":1}`},
		{"leading prose", `Sure! Here you go: {"k":1}`, `{"k":1}`},
		{"trailing prose", `[1,2] as requested.`, `[1,2]`},
		{"no json at all", "nothing here", "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.reply))
		})
	}
}
