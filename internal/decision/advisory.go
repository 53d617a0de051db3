package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/adpilot/internal/domain"
)

// BedrockAdvisor asks an AWS Bedrock model (Claude) to review a rule-based
// decision. All data stays within AWS; no external API calls. The advisor is
// strictly optional: any failure means "no advice".
type BedrockAdvisor struct {
	client  *bedrockruntime.Client
	modelID string
	region  string
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// advisorVerdict is the JSON shape we ask the model to produce.
type advisorVerdict struct {
	Agree      bool    `json:"agree"`
	Confidence float64 `json:"confidence"`
	Insight    string  `json:"insight"`
}

// NewBedrockAdvisor creates an advisor on the given model and region.
func NewBedrockAdvisor(ctx context.Context, modelID, region string) (*BedrockAdvisor, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if modelID == "" {
		modelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	a := &BedrockAdvisor{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		region:  region,
	}
	log.Printf("[BedrockAdvisor] Initialized with model=%s, region=%s", modelID, region)
	return a, nil
}

const advisorSystemPrompt = `You are a performance-marketing analyst reviewing automated campaign decisions.
You are given a business-level decision produced by a deterministic rule engine, with the
per-campaign metrics that drove it. Respond ONLY with a JSON object:
{"agree": bool, "confidence": 0.0-1.0, "insight": "one sentence"}
Your confidence reflects how certain you are the decision is correct for this business.`

// Advise sends the decision snapshot to Bedrock and parses the verdict.
func (a *BedrockAdvisor) Advise(ctx context.Context, b domain.Business, d domain.BusinessDecision) (*Advice, error) {
	snapshot, err := json.Marshal(map[string]interface{}{
		"business_age_days": b.AgeDays(d.EvaluatedAt),
		"decision":          d.Decision,
		"rule_confidence":   d.Confidence,
		"reasons":           d.Reasons,
		"campaigns":         summarizeCampaigns(d.CampaignDecisions),
	})
	if err != nil {
		return nil, err
	}

	req := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        300,
		System:           advisorSystemPrompt,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockContentBlock{{Type: "text", Text: string(snapshot)}},
		}},
		Temperature: 0.2,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	output, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("Bedrock API error: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	verdict, err := parseVerdict(text)
	if err != nil {
		return nil, err
	}
	if !verdict.Agree {
		// A disagreeing advisor never lowers the rule confidence; it only
		// contributes its note to the rationale.
		return &Advice{Confidence: 0, Insight: verdict.Insight}, nil
	}
	return &Advice{Confidence: verdict.Confidence, Insight: verdict.Insight}, nil
}

// parseVerdict extracts the JSON verdict, tolerating surrounding prose.
func parseVerdict(text string) (*advisorVerdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON verdict in model response")
	}
	var v advisorVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("malformed verdict: %w", err)
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return &v, nil
}

func summarizeCampaigns(decisions []domain.CampaignDecision) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, map[string]interface{}{
			"action": d.Action,
			"score":  d.Metrics.PerformanceScore,
			"roas":   d.Metrics.ROAS,
			"spend":  d.Metrics.Spend,
		})
	}
	return out
}
