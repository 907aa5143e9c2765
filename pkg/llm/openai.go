package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const defaultOpenAIModel = openai.ChatModelGPT4o

// OpenAIClient streams completions from the OpenAI Chat Completions API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient builds a client for the given key and model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Model returns the model identifier in use.
func (c *OpenAIClient) Model() string { return c.model }

// GenerateStream runs one streaming completion step against OpenAI.
func (c *OpenAIClient) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		params := c.buildParams(req)
		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		send := func(ch StreamChunk) bool {
			select {
			case chunks <- ch:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Tool calls stream as deltas keyed by index; arguments accumulate
		// until the stream finishes.
		type pendingCall struct {
			id   string
			name string
			args strings.Builder
		}
		pending := make(map[int64]*pendingCall)
		finishReason := ""

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.Content != "" {
				if !send(StreamChunk{Content: choice.Delta.Content}) {
					return
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				pc := pending[tc.Index]
				if pc == nil {
					pc = &pendingCall{}
					pending[tc.Index] = pc
				}
				if tc.ID != "" {
					pc.id = tc.ID
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				pc.args.WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			errs <- fmt.Errorf("openai stream failed: %w", err)
			return
		}

		// Flush completed tool calls in index order, then close the step.
		indexes := make([]int64, 0, len(pending))
		for idx := range pending {
			indexes = append(indexes, idx)
		}
		sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
		for _, idx := range indexes {
			pc := pending[idx]
			if pc.id == "" || pc.name == "" {
				continue
			}
			call := &ToolCall{ID: pc.id, Name: pc.name, Input: joinToolInput([]string{pc.args.String()})}
			if !send(StreamChunk{ToolCall: call}) {
				return
			}
		}
		send(StreamChunk{Done: true, StopReason: finishReason})
	}()

	return chunks, errs
}

// buildParams translates the generic request into chat completion params.
func (c *OpenAIClient) buildParams(req *Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			messages = append(messages, openai.ToolMessage(m.Content, m.ToolID))
		}
	}

	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		fn := openai.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: openai.FunctionParameters(t.InputSchema),
		}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		tools = append(tools, openai.ChatCompletionFunctionTool(fn))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		Tools:    tools,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}
	return params
}
