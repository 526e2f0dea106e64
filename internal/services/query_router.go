package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/platform/ollama"
)

type GenerationClient interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (string, error)
}

// RouteDecision says whether a chat message needs course material context
// and, if so, what search query to use for it.
type RouteDecision struct {
	NeedsRetrieval bool   `json:"needs_retrieval"`
	Query          string `json:"query"`
	Reason         string `json:"reason,omitempty"`
}

type QueryRouter interface {
	Route(ctx context.Context, message string) RouteDecision
}

type queryRouter struct {
	log    *logger.Logger
	client GenerationClient
}

func NewQueryRouter(baseLog *logger.Logger, client GenerationClient) QueryRouter {
	return &queryRouter{
		log:    baseLog.With("service", "QueryRouter"),
		client: client,
	}
}

const routerSystemPrompt = `You classify student chat messages for a course assistant.
Decide whether answering the message requires looking up course material content.
Small talk, greetings, thanks, and questions about the assistant itself do not.
Questions about concepts, definitions, assignments, or anything covered by the
course do.

Respond with ONLY a JSON object, no prose:
{"needs_retrieval": true|false, "query": "<search query, or empty string>", "reason": "<short reason>"}

When retrieval is needed, "query" is a concise standalone search query capturing
what the student wants to know.`

// Route classifies a message. The classifier is best effort; any failure in
// the model call or its output drops to a phrase-list heuristic so routing
// never blocks chat.
func (r *queryRouter) Route(ctx context.Context, message string) RouteDecision {
	response, err := r.client.Generate(ctx, ollama.GenerateRequest{
		Prompt:      message,
		System:      routerSystemPrompt,
		Temperature: 0.1,
		NumPredict:  200,
	})
	if err != nil {
		r.log.Warn("Router model call failed, using heuristic", "error", err)
		return heuristicRoute(message)
	}

	decision, ok := parseRouteDecision(response)
	if !ok {
		r.log.Warn("Router output was not valid JSON, using heuristic", "output_len", len(response))
		return heuristicRoute(message)
	}
	if decision.NeedsRetrieval && strings.TrimSpace(decision.Query) == "" {
		decision.Query = message
	}
	return decision
}

// parseRouteDecision extracts the first balanced {...} block from the model
// output. Models wrap JSON in prose or code fences often enough that a plain
// Unmarshal of the whole response is not reliable.
func parseRouteDecision(response string) (RouteDecision, bool) {
	start := strings.IndexByte(response, '{')
	if start < 0 {
		return RouteDecision{}, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var decision RouteDecision
				if err := json.Unmarshal([]byte(response[start:i+1]), &decision); err != nil {
					return RouteDecision{}, false
				}
				return decision, true
			}
		}
	}
	return RouteDecision{}, false
}

var smallTalkPhrases = []string{
	"hi", "hello", "hey", "yo", "sup",
	"good morning", "good afternoon", "good evening",
	"thanks", "thank you", "thx",
	"bye", "goodbye", "see you",
	"how are you", "what's up", "whats up",
	"who are you", "what are you", "what can you do",
	"ok", "okay", "cool", "nice", "great",
}

// heuristicRoute is the no-model fallback: short small-talk messages skip
// retrieval, everything else retrieves with the raw message as the query.
func heuristicRoute(message string) RouteDecision {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.TrimRight(normalized, ".!?")

	for _, phrase := range smallTalkPhrases {
		if normalized == phrase {
			return RouteDecision{NeedsRetrieval: false, Reason: "small talk"}
		}
	}
	if len(strings.Fields(normalized)) <= 2 {
		for _, phrase := range smallTalkPhrases {
			if strings.HasPrefix(normalized, phrase+" ") {
				return RouteDecision{NeedsRetrieval: false, Reason: "small talk"}
			}
		}
	}
	return RouteDecision{NeedsRetrieval: true, Query: message, Reason: "default to retrieval"}
}
