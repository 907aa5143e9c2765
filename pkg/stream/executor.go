// Package stream drives AI generation streams: the provider tool-call loop,
// SSE framing, the stream session registry, and cooperative cancellation.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/webforge-labs/webforge/pkg/llm"
	"github.com/webforge-labs/webforge/pkg/models"
	"github.com/webforge-labs/webforge/pkg/services"
	"github.com/webforge-labs/webforge/pkg/workspace"
)

var (
	// ErrStreamActive is returned when the chat already has a generation
	// in flight; streams are one-at-a-time per chat.
	ErrStreamActive = errors.New("a generation is already running for this chat")

	// ErrShuttingDown is returned for new streams once Stop has begun.
	ErrShuttingDown = errors.New("stream executor is shutting down")
)

// DefaultMaxSteps bounds the provider tool-call loop of one generation.
const DefaultMaxSteps = 10

// ClientFactory builds a provider client from the user's settings.
type ClientFactory func(provider, model string) (llm.Client, error)

// GenerateRequest is the body of POST /stream/{chatId}. Redo regenerates
// against the existing history as-is: no user message is appended and
// Prompt is ignored.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Redo   bool   `json:"redo,omitempty"`
}

// session is one in-flight generation, cancellable by stream ID.
type session struct {
	streamID string
	chatID   int64
	userID   int64
	cancel   context.CancelFunc
}

// Executor runs generation streams and owns the stream session registry.
type Executor struct {
	apps      *services.AppService
	messages  *services.MessageService
	users     *services.UserService
	manager   *workspace.Manager
	newClient ClientFactory
	maxSteps  int
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	byChat   map[int64]string
	stopped  bool
	wg       sync.WaitGroup
}

// NewExecutor creates a new Executor.
func NewExecutor(
	apps *services.AppService,
	messages *services.MessageService,
	users *services.UserService,
	manager *workspace.Manager,
	newClient ClientFactory,
	maxSteps int,
) *Executor {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Executor{
		apps:      apps,
		messages:  messages,
		users:     users,
		manager:   manager,
		newClient: newClient,
		maxSteps:  maxSteps,
		logger:    slog.With("component", "stream"),
		sessions:  make(map[string]*session),
		byChat:    make(map[int64]string),
	}
}

// Run executes one generation stream for an owned chat and writes SSE frames
// to w. Errors returned before any frame is written map to plain HTTP
// responses; once streaming starts, failures become error frames and Run
// returns nil.
func (e *Executor) Run(httpCtx context.Context, w http.ResponseWriter, userID int64, chat *models.Chat, req GenerateRequest) error {
	prompt := strings.TrimSpace(req.Prompt)
	if !req.Redo && prompt == "" {
		return services.NewValidationError("prompt", "required")
	}

	store, err := e.manager.Open(userID, chat.AppID)
	if err != nil {
		return err
	}

	// 1. Claim the chat slot and register the session. Claiming before any
	// persistence keeps concurrent streams on one chat from interleaving.
	streamCtx, sess, err := e.register(httpCtx, userID, chat.ID)
	if err != nil {
		return err
	}
	defer e.release(sess)
	defer sess.cancel()

	writer, err := newSSEWriter(w)
	if err != nil {
		return err
	}

	logger := e.logger.With("stream_id", sess.streamID, "chat_id", chat.ID, "app_id", chat.AppID)

	// 2. Materialize the starter template on first use.
	initialized, err := store.Initialized()
	if err != nil {
		return e.fail(writer, logger, "failed to inspect workspace", err)
	}
	if !initialized {
		_ = writer.writeFrame(statusFrame("Setting up your project..."))
		if err := store.WriteTemplate(workspace.DefaultTemplate); err != nil {
			return e.fail(writer, logger, "failed to set up project", err)
		}
		_ = writer.writeFrame(statusFrame("Project files created"))
	}

	// 3. Load history before appending anything new.
	history, err := e.messages.List(streamCtx, userID, chat.ID)
	if err != nil {
		return e.fail(writer, logger, "failed to load chat history", err)
	}

	// 4. Persist the user message; a redo reuses the history as-is.
	var userMsg *models.Message
	if !req.Redo {
		userMsg, err = e.messages.Append(streamCtx, chat.ID, models.RoleUser, prompt, nil)
		if err != nil {
			return e.fail(writer, logger, "failed to save message", err)
		}
	}

	// 5. Announce the stream and echo the persisted user message.
	_ = writer.writeFrame(streamIDFrame(sess.streamID))
	if userMsg != nil {
		_ = writer.writeFrame(messageFrame(userMsg))
	}

	// 6. Resolve the provider from user settings and build its client.
	settings, err := e.users.GetSettings(streamCtx, userID)
	if err != nil {
		return e.fail(writer, logger, "failed to load settings", err)
	}
	client, err := e.newClient(settings.Provider, settings.Model)
	if err != nil {
		return e.fail(writer, logger, "provider unavailable", err)
	}

	conversation := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		conversation = append(conversation, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	if userMsg != nil {
		conversation = append(conversation, llm.Message{Role: llm.RoleUser, Content: userMsg.Content})
	}
	if len(conversation) == 0 {
		_ = writer.writeFrame(errorFrame("chat has no messages to regenerate"))
		return nil
	}

	logger.Info("Starting generation stream",
		"provider", settings.Provider, "model", client.Model(), "redo", req.Redo)

	// 7. Drive the streaming tool-call loop.
	runner := NewToolRunner(store)
	tools := ToolDefinitions()
	var fullContent strings.Builder
	filesChanged := false

	for step := 0; step < e.maxSteps; step++ {
		chunks, errs := client.GenerateStream(streamCtx, &llm.Request{
			System:   systemPrompt,
			Messages: conversation,
			Tools:    tools,
		})

		var stepText strings.Builder
		var toolCalls []llm.ToolCall

		for chunk := range chunks {
			if chunk.Content != "" {
				stepText.WriteString(chunk.Content)
				fullContent.WriteString(chunk.Content)
				_ = writer.writeFrame(chunkFrame(chunk.Content, fullContent.String()))
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		}

		// Cancellation (explicit or client disconnect): stop without
		// persisting anything.
		if streamCtx.Err() != nil {
			logger.Info("Generation cancelled", "step", step+1)
			return nil
		}
		if err := <-errs; err != nil {
			logger.Error("Provider stream failed", "step", step+1, "error", err)
			_ = writer.writeFrame(errorFrame(err.Error()))
			return nil
		}

		// A step without tool calls is the final answer.
		if len(toolCalls) == 0 {
			break
		}

		conversation = append(conversation, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   stepText.String(),
			ToolCalls: toolCalls,
		})

		// 8. Execute each tool call; results feed the next step. Failed
		// tools report through their result payload, not by aborting.
		for _, call := range toolCalls {
			outcome := runner.Execute(call)
			if outcome.Mutated {
				filesChanged = true
				_ = writer.writeFrame(fileUpdateFrame(outcome.Path, outcome.Summary))
			}
			conversation = append(conversation, llm.Message{
				Role:    llm.RoleTool,
				Content: outcome.Result,
				ToolID:  call.ID,
			})
		}
	}

	if streamCtx.Err() != nil {
		logger.Info("Generation cancelled before completion")
		return nil
	}

	// 9. Completion: persist the assistant message, record a version when
	// files changed, bump the app, emit the end frame. Detached context so
	// a client walking away mid-commit cannot half-apply these steps.
	finishCtx := context.Background()
	assistantMsg, err := e.messages.Append(finishCtx, chat.ID, models.RoleAssistant, fullContent.String(), &sess.streamID)
	if err != nil {
		return e.fail(writer, logger, "failed to save assistant message", err)
	}
	if filesChanged {
		if _, err := e.apps.RecordVersion(finishCtx, chat.AppID, versionLabel(prompt)); err != nil {
			logger.Warn("Failed to record app version", "error", err)
		}
	}
	if err := e.apps.TouchUpdatedAt(finishCtx, chat.AppID); err != nil {
		logger.Warn("Failed to touch app", "error", err)
	}

	_ = writer.writeFrame(endFrame(assistantMsg, chat.ID))
	logger.Info("Generation finished", "files_changed", filesChanged)
	return nil
}

// Cancel stops the stream if it belongs to the user. Returns false when the
// stream is unknown or already finished.
func (e *Executor) Cancel(streamID string, userID int64) bool {
	e.mu.Lock()
	sess, ok := e.sessions[streamID]
	e.mu.Unlock()
	if !ok || sess.userID != userID {
		return false
	}
	sess.cancel()
	return true
}

// Stop cancels all in-flight generations and waits for them to drain. New
// streams fail with ErrShuttingDown.
func (e *Executor) Stop() {
	e.mu.Lock()
	e.stopped = true
	for _, sess := range e.sessions {
		sess.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Executor) register(httpCtx context.Context, userID, chatID int64) (context.Context, *session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, nil, ErrShuttingDown
	}
	if _, active := e.byChat[chatID]; active {
		return nil, nil, ErrStreamActive
	}

	streamCtx, cancel := context.WithCancel(httpCtx)
	sess := &session{
		streamID: uuid.NewString(),
		chatID:   chatID,
		userID:   userID,
		cancel:   cancel,
	}
	e.sessions[sess.streamID] = sess
	e.byChat[chatID] = sess.streamID
	e.wg.Add(1)
	return streamCtx, sess, nil
}

func (e *Executor) release(sess *session) {
	e.mu.Lock()
	delete(e.sessions, sess.streamID)
	delete(e.byChat, sess.chatID)
	e.mu.Unlock()
	e.wg.Done()
}

// fail logs the underlying error and reports a frame the client can show.
func (e *Executor) fail(writer *sseWriter, logger *slog.Logger, message string, err error) error {
	logger.Error("Generation stream failed", "error", err)
	_ = writer.writeFrame(errorFrame(message + ": " + err.Error()))
	return nil
}

// versionLabel derives a snapshot label from the prompt that produced it.
func versionLabel(prompt string) string {
	const maxLabel = 80
	label := strings.TrimSpace(prompt)
	if label == "" {
		return "Workspace update"
	}
	if len(label) > maxLabel {
		label = strings.TrimSpace(label[:maxLabel]) + "..."
	}
	return label
}
