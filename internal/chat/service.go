package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/rag"
)

// ErrNoContext means retrieval produced nothing to ground an answer on.
// The API maps it to a user-facing "not enough information" response,
// never a server error.
var ErrNoContext = errors.New("no relevant context for question")

const (
	maxSources    = 3
	maxExcerptLen = 200
	maxHistory    = 5
)

// retriever is the retrieval surface the service needs.
type retriever interface {
	Retrieve(ctx context.Context, query string, k int) []rag.Result
}

// Source points the user at where an answer came from.
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

// Reply is a grounded answer plus its sources.
type Reply struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// ServiceConfig tunes the chat service.
type ServiceConfig struct {
	// SiteName labels the assistant in the system prompt.
	SiteName string
	// TopK is how many chunks to retrieve per question.
	TopK int
}

// Service answers questions grounded on retrieved site content.
type Service struct {
	retriever retriever
	completer Completer
	cfg       ServiceConfig
	logger    *zap.Logger
}

// NewService wires the chat service.
func NewService(r retriever, completer Completer, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "this website"
	}
	return &Service{retriever: r, completer: completer, cfg: cfg, logger: logger}
}

// Answer retrieves context for message, asks the model, and returns the
// reply with up to three deduplicated sources. It returns ErrNoContext
// when nothing relevant is indexed.
func (s *Service) Answer(ctx context.Context, message string, history []Message) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, errors.New("message is required")
	}

	results := s.retriever.Retrieve(ctx, message, s.cfg.TopK)
	if len(results) == 0 {
		return Reply{}, ErrNoContext
	}

	messages := append(trimHistory(history), Message{Role: "user", Content: message})
	answer, err := s.completer.Complete(ctx, s.systemPrompt(results), messages)
	if err != nil {
		return Reply{}, fmt.Errorf("complete chat: %w", err)
	}

	return Reply{Answer: answer, Sources: buildSources(results)}, nil
}

// systemPrompt numbers each retrieved chunk so the model can ground its
// answer and nothing outside the site content leaks in.
func (s *Service) systemPrompt(results []rag.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a helpful assistant for %s. ", s.cfg.SiteName)
	sb.WriteString("Answer questions using only the context below. ")
	sb.WriteString("If the context does not contain the answer, say you do not have enough information. ")
	sb.WriteString("Do not invent facts.\n\nContext:\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", i+1, r.Title, r.URL, r.Text)
	}
	return sb.String()
}

// trimHistory keeps the most recent turns and drops anything with a role
// the Messages API does not accept.
func trimHistory(history []Message) []Message {
	var trimmed []Message
	for _, m := range history {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		trimmed = append(trimmed, m)
	}
	if len(trimmed) > maxHistory {
		trimmed = trimmed[len(trimmed)-maxHistory:]
	}
	return trimmed
}

// buildSources dedupes by URL, keeping retrieval order, and caps both the
// list and each excerpt.
func buildSources(results []rag.Result) []Source {
	seen := make(map[string]struct{}, len(results))
	var sources []Source
	for _, r := range results {
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		excerpt := r.Text
		if len(excerpt) > maxExcerptLen {
			excerpt = excerpt[:maxExcerptLen]
		}
		sources = append(sources, Source{URL: r.URL, Title: r.Title, Excerpt: excerpt})
		if len(sources) == maxSources {
			break
		}
	}
	return sources
}
