package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = string(sdk.ModelClaudeSonnet4_5_20250929)

const defaultMaxTokens = 8192

// AnthropicClient streams completions from the Anthropic Messages API.
type AnthropicClient struct {
	client sdk.Client
	model  string
}

// NewAnthropicClient builds a client for the given key and model.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Model returns the model identifier in use.
func (c *AnthropicClient) Model() string { return c.model }

// GenerateStream runs one streaming completion step against Anthropic.
func (c *AnthropicClient) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		params := c.buildParams(req)
		stream := c.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		send := func(ch StreamChunk) bool {
			select {
			case chunks <- ch:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Tool input JSON arrives as fragments per content block index and
		// is assembled until the block stops.
		type toolBuffer struct {
			id        string
			name      string
			fragments []string
		}
		toolBlocks := make(map[int]*toolBuffer)
		stopReason := ""

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case sdk.ContentBlockStartEvent:
				if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
					toolBlocks[int(ev.Index)] = &toolBuffer{id: tu.ID, name: tu.Name}
				}
			case sdk.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case sdk.TextDelta:
					if delta.Text == "" {
						continue
					}
					if !send(StreamChunk{Content: delta.Text}) {
						return
					}
				case sdk.InputJSONDelta:
					if tb := toolBlocks[int(ev.Index)]; tb != nil && delta.PartialJSON != "" {
						tb.fragments = append(tb.fragments, delta.PartialJSON)
					}
				}
			case sdk.ContentBlockStopEvent:
				tb := toolBlocks[int(ev.Index)]
				if tb == nil {
					continue
				}
				delete(toolBlocks, int(ev.Index))
				call := &ToolCall{ID: tb.id, Name: tb.name, Input: joinToolInput(tb.fragments)}
				if !send(StreamChunk{ToolCall: call}) {
					return
				}
			case sdk.MessageDeltaEvent:
				stopReason = string(ev.Delta.StopReason)
			case sdk.MessageStopEvent:
				if !send(StreamChunk{Done: true, StopReason: stopReason}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			errs <- fmt.Errorf("anthropic stream failed: %w", err)
		}
	}()

	return chunks, errs
}

// buildParams translates the generic request into Anthropic message params.
func (c *AnthropicClient) buildParams(req *Request) sdk.MessageNewParams {
	var system []sdk.TextBlockParam
	if req.System != "" {
		system = append(system, sdk.TextBlockParam{Text: req.System})
	}

	conversation := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		case RoleTool:
			// Tool results travel as user-role content blocks.
			conversation = append(conversation, sdk.NewUserMessage(
				sdk.NewToolResultBlock(m.ToolID, m.Content, false)))
		}
	}

	tools := make([]sdk.ToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: t.InputSchema}, t.Name)
		if u.OfTool != nil && t.Description != "" {
			u.OfTool.Description = sdk.String(t.Description)
		}
		tools = append(tools, u)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return sdk.MessageNewParams{
		MaxTokens: maxTokens,
		Messages:  conversation,
		Model:     sdk.Model(c.model),
		System:    system,
		Tools:     tools,
	}
}

// joinToolInput assembles streamed input fragments into a JSON document,
// defaulting to an empty object for no-argument calls.
func joinToolInput(fragments []string) json.RawMessage {
	joined := strings.TrimSpace(strings.Join(fragments, ""))
	if joined == "" {
		joined = "{}"
	}
	return json.RawMessage(joined)
}
