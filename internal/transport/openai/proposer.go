package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/usecase/heal"
)

const proposerSystemPrompt = `You repair database queries that referenced unknown fields or returned nothing.
You receive the collection schema, the original query, and (when present) the invalid field names with ranked replacement candidates.
Return a corrected query with the same structure: same operators, same logical shape, same values. Only field names may change.
Respond with a single JSON object: {"predicate": {...}} and/or {"pipeline": [...]} and/or {"key": "..."} matching the parts the original query had. No prose.`

// Proposer asks a chat model for a corrected query in strict JSON.
type Proposer struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// ProposerConfig holds the correction model settings.
type ProposerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewProposer creates the reasoning-collaborator adapter.
func NewProposer(cfg *ProposerConfig) *Proposer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Proposer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Propose implements heal.Proposer. The context deadline bounds the model
// call; callers must set a sane timeout, this is the slowest step.
func (p *Proposer) Propose(ctx context.Context, req heal.Request) (heal.Proposal, error) {
	payload, err := json.Marshal(proposerInput{
		Collection:    req.Collection,
		Fields:        req.Table.Fields,
		Operation:     req.Operation,
		Predicate:     req.Predicate,
		Pipeline:      req.Pipeline,
		Key:           req.Key,
		Trigger:       string(req.Trigger),
		InvalidFields: req.InvalidFields,
		Suggestions:   req.Suggestions,
	})
	if err != nil {
		return heal.Proposal{}, fmt.Errorf("marshal correction request: %w", err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: proposerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
	})
	if err != nil {
		return heal.Proposal{}, fmt.Errorf("correction completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return heal.Proposal{}, fmt.Errorf("empty correction response")
	}

	content := resp.Choices[0].Message.Content
	var proposal heal.Proposal
	if err := json.Unmarshal([]byte(content), &proposal); err != nil {
		p.logger.Warn("correction response is not valid JSON", zap.String("content", content))
		return heal.Proposal{}, fmt.Errorf("parse correction proposal: %w", err)
	}
	return proposal, nil
}

type proposerInput struct {
	Collection    string `json:"collection"`
	Fields        any    `json:"fields"`
	Operation     string `json:"operation"`
	Predicate     any    `json:"predicate,omitempty"`
	Pipeline      any    `json:"pipeline,omitempty"`
	Key           string `json:"key,omitempty"`
	Trigger       string `json:"trigger"`
	InvalidFields any    `json:"invalidFields,omitempty"`
	Suggestions   any    `json:"suggestions,omitempty"`
}
