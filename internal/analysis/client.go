package analysis

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/rs/zerolog/log"

	"github.com/mietcheck/mietcheck/internal/preprocess"
	"github.com/mietcheck/mietcheck/pkg/models"
)

// Options carries per-job context for one analysis call.
type Options struct {
	// FloorAreaSqm is the user-declared apartment floor area, 0 if none.
	FloorAreaSqm float64
	// Plan is the purchased plan identifier; the pro plan adds the
	// dispute-letter instruction.
	Plan string
}

// Client invokes the vision-capable model with deterministic sampling
// and a hard output-token ceiling.
type Client struct {
	client     *azopenai.Client
	deployment string
	maxTokens  int32
}

// NewClient creates an analysis client for the given endpoint and deployment.
func NewClient(endpoint, apiKey, deployment string, maxTokens int32) (*Client, error) {
	keyCredential := azcore.NewKeyCredential(apiKey)
	client, err := azopenai.NewClientWithKeyCredential(endpoint, keyCredential, nil)
	if err != nil {
		return nil, fmt.Errorf("create analysis client: %w", err)
	}
	return &Client{
		client:     client,
		deployment: deployment,
		maxTokens:  maxTokens,
	}, nil
}

// Analyze runs one model invocation over the preprocessed payload and
// returns a schema-valid result. The model's judgment is authoritative;
// this method only guarantees well-formed output.
func (c *Client) Analyze(ctx context.Context, payload *preprocess.Payload, opts Options) (*models.AnalysisResult, error) {
	resp, err := c.client.GetChatCompletions(ctx, azopenai.ChatCompletionsOptions{
		DeploymentName: to.Ptr(c.deployment),
		Messages: []azopenai.ChatRequestMessageClassification{
			&azopenai.ChatRequestSystemMessage{
				Content: azopenai.NewChatRequestSystemMessageContent(systemInstructions(opts)),
			},
			&azopenai.ChatRequestUserMessage{
				Content: azopenai.NewChatRequestUserMessageContent(userContent(payload, opts)),
			},
		},
		Temperature: to.Ptr(float32(0)),
		MaxTokens:   to.Ptr(c.maxTokens),
	}, nil)
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return nil, &Error{Kind: KindMalformed, err: fmt.Errorf("empty completion")}
	}
	choice := resp.Choices[0]

	truncated := choice.FinishReason != nil && *choice.FinishReason == azopenai.CompletionsFinishReasonTokenLimitReached
	if truncated {
		log.Warn().Msg("Model response hit the token ceiling, running JSON repair")
	}

	result, err := ParseResult(*choice.Message.Content, truncated)
	if err != nil {
		return nil, err
	}

	backfillFloorArea(result, opts)
	return result, nil
}

// backfillFloorArea fills in the caller-supplied floor area when the
// model did not detect one, annotated as user-supplied.
func backfillFloorArea(result *models.AnalysisResult, opts Options) {
	if opts.FloorAreaSqm <= 0 {
		return
	}
	if result.FloorArea != nil && result.FloorArea.SquareMeters > 0 {
		return
	}
	result.FloorArea = &models.FloorArea{
		SquareMeters: opts.FloorAreaSqm,
		Source:       models.FloorAreaUserSupplied,
	}
}

// userContent maps payload parts onto chat content items. Binary parts
// travel as base64 data URLs.
func userContent(payload *preprocess.Payload, opts Options) []azopenai.ChatCompletionRequestMessageContentPartClassification {
	var parts []azopenai.ChatCompletionRequestMessageContentPartClassification

	if payload.Note != "" {
		parts = append(parts, &azopenai.ChatCompletionRequestMessageContentPartText{
			Text: to.Ptr(payload.Note),
		})
	}
	if opts.FloorAreaSqm > 0 {
		parts = append(parts, &azopenai.ChatCompletionRequestMessageContentPartText{
			Text: to.Ptr(fmt.Sprintf("Vom Nutzer angegebene Wohnfläche: %.1f m²", opts.FloorAreaSqm)),
		})
	}

	for _, part := range payload.Parts {
		switch part.Kind {
		case preprocess.PartText:
			parts = append(parts, &azopenai.ChatCompletionRequestMessageContentPartText{
				Text: to.Ptr(part.Text),
			})
		case preprocess.PartImage, preprocess.PartDocument:
			url := fmt.Sprintf("data:%s;base64,%s", part.MediaType, base64.StdEncoding.EncodeToString(part.Data))
			parts = append(parts, &azopenai.ChatCompletionRequestMessageContentPartImage{
				ImageURL: &azopenai.ChatCompletionRequestMessageContentPartImageURL{
					URL: to.Ptr(url),
				},
			})
		}
	}
	return parts
}
