package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/webforge-labs/webforge/pkg/models"
)

// Frame types on the generation SSE channel.
const (
	frameStreamID   = "streamId"
	frameStatus     = "status"
	frameMessage    = "message"
	frameChunk      = "chunk"
	frameFileUpdate = "fileUpdate"
	frameEnd        = "end"
	frameError      = "error"
)

// frame is one SSE event. Message carries a string on status frames and the
// persisted row on message/end frames.
type frame struct {
	Type        string `json:"type"`
	StreamID    string `json:"streamId,omitempty"`
	Message     any    `json:"message,omitempty"`
	Content     string `json:"content,omitempty"`
	FullContent string `json:"fullContent,omitempty"`
	Path        string `json:"path,omitempty"`
	ChatID      int64  `json:"chatId,omitempty"`
	Error       string `json:"error,omitempty"`
}

func streamIDFrame(id string) frame {
	return frame{Type: frameStreamID, StreamID: id}
}

func statusFrame(message string) frame {
	return frame{Type: frameStatus, Message: message}
}

func messageFrame(msg *models.Message) frame {
	return frame{Type: frameMessage, Message: msg}
}

func chunkFrame(content, fullContent string) frame {
	return frame{Type: frameChunk, Content: content, FullContent: fullContent}
}

func fileUpdateFrame(path, message string) frame {
	return frame{Type: frameFileUpdate, Path: path, Message: message}
}

func endFrame(msg *models.Message, chatID int64) frame {
	return frame{Type: frameEnd, Message: msg, ChatID: chatID}
}

func errorFrame(message string) frame {
	return frame{Type: frameError, Error: message}
}

// sseWriter emits frames as server-sent events, flushing after every write
// so chunks reach the client unbuffered.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
