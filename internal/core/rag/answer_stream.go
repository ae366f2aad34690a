package rag

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

// Frame types, in the order a consumer sees them: one chat frame, one
// citations frame, zero or more deltas, then exactly one of done or error.
const (
	FrameChat      = "chat"
	FrameCitations = "citations"
	FrameDelta     = "delta"
	FrameDone      = "done"
	FrameError     = "error"
)

type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// AnswerRequest describes one question. DocumentID nil means ungrounded
// chat; ChatID nil means a new conversation is created.
type AnswerRequest struct {
	UserID     string
	ChatID     *string
	DocumentID *string
	Message    string
}

// AnswerStreamer assembles a grounded prompt and streams the generation as
// typed frames. The assistant message is persisted only after the stream
// completes; partial text from a failed stream is discarded so truncated
// answers are never stored.
type AnswerStreamer struct {
	db        core.DbClient
	retriever *Retriever
	llm       core.LLMProvider
}

func NewAnswerStreamer(db core.DbClient, retriever *Retriever, llm core.LLMProvider) *AnswerStreamer {
	return &AnswerStreamer{db: db, retriever: retriever, llm: llm}
}

// Answer returns a frame channel that is closed after the terminal frame.
// Cancelling ctx stops token consumption promptly; a cancelled answer is
// never persisted, and the stream still ends with an error frame as long
// as the consumer is draining.
func (s *AnswerStreamer) Answer(ctx context.Context, req AnswerRequest) <-chan Frame {
	out := make(chan Frame, 8)

	go func() {
		terminal := false
		defer func() {
			// A cancelled context can stop the frame protocol before its
			// done/error frame went out. Close with a best-effort error
			// frame so a draining consumer never sees a bare channel close.
			if !terminal {
				select {
				case out <- Frame{Type: FrameError, Data: "answer cancelled"}:
				default:
				}
			}
			close(out)
		}()

		emit := func(f Frame) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		chatID, err := s.ensureChat(ctx, req)
		if err != nil {
			terminal = emit(Frame{Type: FrameError, Data: "could not open conversation"})
			return
		}
		if !emit(Frame{Type: FrameChat, Data: map[string]string{"chatId": chatID}}) {
			return
		}

		if err := s.db.AddChatMessage(ctx, &models.ChatMessage{
			ID:      uuid.NewString(),
			ChatID:  chatID,
			Role:    "user",
			Content: req.Message,
		}); err != nil {
			log.Warn().Err(err).Str("chat_id", chatID).Msg("persisting user message failed")
		}

		prompt := s.buildPrompt(ctx, req)
		if !emit(Frame{Type: FrameCitations, Data: citationsOrEmpty(prompt.Citations)}) {
			return
		}

		stream := s.llm.GenerateStream(ctx, prompt.System, prompt.User)

		var full strings.Builder
		for {
			part, err := stream.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				log.Warn().Err(err).Str("chat_id", chatID).Msg("generation stream failed")
				terminal = emit(Frame{Type: FrameError, Data: "generation failed"})
				return
			}
			full.WriteString(part)
			if !emit(Frame{Type: FrameDelta, Data: part}) {
				return
			}
		}

		if err := s.db.AddChatMessage(ctx, &models.ChatMessage{
			ID:      uuid.NewString(),
			ChatID:  chatID,
			Role:    "assistant",
			Content: full.String(),
		}); err != nil {
			log.Warn().Err(err).Str("chat_id", chatID).Msg("persisting assistant message failed")
		}
		terminal = emit(Frame{Type: FrameDone})
	}()

	return out
}

func (s *AnswerStreamer) ensureChat(ctx context.Context, req AnswerRequest) (string, error) {
	if req.ChatID != nil {
		return *req.ChatID, nil
	}
	chat := &models.Chat{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		DocumentID: req.DocumentID,
	}
	if err := s.db.CreateChat(ctx, chat); err != nil {
		return "", err
	}
	return chat.ID, nil
}

func (s *AnswerStreamer) buildPrompt(ctx context.Context, req AnswerRequest) Prompt {
	if req.DocumentID == nil {
		return BuildPrompt(req.Message, nil)
	}
	chunks, err := s.retriever.Retrieve(ctx, *req.DocumentID, req.Message, DefaultTopK, DefaultProbes)
	if err != nil {
		log.Warn().Err(err).Str("document_id", *req.DocumentID).Msg("retrieval failed, answering ungrounded")
		chunks = nil
	}
	return BuildPrompt(req.Message, chunks)
}

func citationsOrEmpty(c []models.Citation) []models.Citation {
	if c == nil {
		return []models.Citation{}
	}
	return c
}
