package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/webforge-labs/webforge/pkg/llm"
	"github.com/webforge-labs/webforge/pkg/stream"
)

// LLMScriptEntry defines a single scripted provider response. One entry is
// consumed per GenerateStream call, i.e. per step of the tool-call loop.
type LLMScriptEntry struct {
	// Response content (exactly one should be set)
	Chunks []llm.StreamChunk // pre-built chunks to stream
	Text   string            // shorthand: one text chunk plus a terminal Done chunk
	Error  error             // terminal failure delivered on the error channel

	// Test control
	BlockUntilCancelled bool            // park the stream until ctx is cancelled
	WaitCh              <-chan struct{} // park the stream until closed, then respond normally
	OnBlock             chan<- struct{} // notified when the stream enters its blocking path
}

// ScriptedLLMClient implements llm.Client with a fixed response script,
// consumed in call order. The generation pipeline serializes the steps of a
// stream, so sequential dispatch is enough.
type ScriptedLLMClient struct {
	mu               sync.Mutex
	entries          []LLMScriptEntry
	index            int
	capturedRequests []*llm.Request
}

// NewScriptedLLMClient creates an empty script. Tests append entries with Add.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{}
}

// Add appends one scripted response.
func (c *ScriptedLLMClient) Add(entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

// AddText appends a plain final-answer step.
func (c *ScriptedLLMClient) AddText(text string) {
	c.Add(LLMScriptEntry{Text: text})
}

// Factory adapts the scripted client to the executor's provider wiring. Every
// provider/model pair resolves to this client.
func (c *ScriptedLLMClient) Factory() stream.ClientFactory {
	return func(provider, model string) (llm.Client, error) {
		return c, nil
	}
}

// Model implements llm.Client.
func (c *ScriptedLLMClient) Model() string { return "scripted-model" }

// GenerateStream implements llm.Client.
func (c *ScriptedLLMClient) GenerateStream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, <-chan error) {
	c.mu.Lock()
	c.capturedRequests = append(c.capturedRequests, req)

	var entry *LLMScriptEntry
	if c.index < len(c.entries) {
		entry = &c.entries[c.index]
		c.index++
	}
	used := c.index
	total := len(c.entries)
	c.mu.Unlock()

	chunks := make(chan llm.StreamChunk, 16)
	errs := make(chan error, 1)

	// Running past the script is a test bug; surface it as a provider
	// failure so the stream reports it instead of hanging.
	if entry == nil {
		errs <- fmt.Errorf("ScriptedLLMClient: no more entries (consumed %d/%d)", used, total)
		close(errs)
		close(chunks)
		return chunks, errs
	}

	// Park until cancelled: both channels close with nothing sent, so the
	// consumer observes ctx.Err() rather than a response.
	if entry.BlockUntilCancelled {
		go func() {
			if entry.OnBlock != nil {
				entry.OnBlock <- struct{}{}
			}
			<-ctx.Done()
			close(chunks)
			close(errs)
		}()
		return chunks, errs
	}

	go func() {
		defer close(chunks)
		defer close(errs)

		if entry.WaitCh != nil {
			if entry.OnBlock != nil {
				entry.OnBlock <- struct{}{}
			}
			select {
			case <-entry.WaitCh:
			case <-ctx.Done():
				return
			}
		}

		if entry.Error != nil {
			errs <- entry.Error
			return
		}

		out := entry.Chunks
		if len(out) == 0 && entry.Text != "" {
			out = []llm.StreamChunk{
				{Content: entry.Text},
				{Done: true, StopReason: "end_turn"},
			}
		}
		for _, chunk := range out {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunks, errs
}

// CallCount returns the total number of GenerateStream calls made.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.capturedRequests)
}

// CapturedRequests returns a snapshot of every request the pipeline sent.
func (c *ScriptedLLMClient) CapturedRequests() []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*llm.Request, len(c.capturedRequests))
	copy(out, c.capturedRequests)
	return out
}

// TextChunk builds a streamed text chunk.
func TextChunk(content string) llm.StreamChunk {
	return llm.StreamChunk{Content: content}
}

// ToolCallChunk builds a streamed tool-call chunk. args is marshaled as the
// tool input.
func ToolCallChunk(id, name string, args map[string]any) llm.StreamChunk {
	input, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("ToolCallChunk: %v", err))
	}
	return llm.StreamChunk{ToolCall: &llm.ToolCall{ID: id, Name: name, Input: input}}
}

// DoneChunk builds the terminal chunk of a step.
func DoneChunk(stopReason string) llm.StreamChunk {
	return llm.StreamChunk{Done: true, StopReason: stopReason}
}
