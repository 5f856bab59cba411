package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"

	"github.com/xdial/xdial/internal/session"
)

// requestTimeout bounds each classifier call so a live call leg is never
// stalled on the semantic service.
const requestTimeout = 20 * time.Second

// OpenAIClassifier implements Classifier on the OpenAI chat completion API.
type OpenAIClassifier struct {
	client   *openai.Client
	model    string
	failures prometheus.Counter
	logger   *slog.Logger
}

// NewOpenAIClassifier creates a classifier using the given API key and chat
// model. failures, when non-nil, counts every call that fell back to its
// default answer.
func NewOpenAIClassifier(apiKey, model string, failures prometheus.Counter, logger *slog.Logger) *OpenAIClassifier {
	return &OpenAIClassifier{
		client:   openai.NewClient(apiKey),
		model:    model,
		failures: failures,
		logger:   logger.With("component", "classifier"),
	}
}

func (c *OpenAIClassifier) fail() {
	if c.failures != nil {
		c.failures.Inc()
	}
}

// complete runs one chat completion and returns the trimmed message content.
func (c *OpenAIClassifier) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ClassifyType labels the transcript as one of the IVR interaction types.
func (c *OpenAIClassifier) ClassifyType(ctx context.Context, transcript, query string) session.IVRType {
	messages := []openai.ChatCompletionMessage{{
		Role: openai.ChatMessageRoleSystem,
		Content: "You are an IVR type classifier. Based on the transcript provided, " +
			"classify the type of phone system interaction. Respond ONLY with valid JSON. " +
			"Never say anything else. Return one of: 'menu', 'open-ended', 'confirmation', " +
			"or 'repeat'.\n\nExample: {\"type\": \"menu\"}",
	}}
	if query != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: "User query: " + query,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: transcript,
	})

	raw, err := c.complete(ctx, messages)
	if err != nil {
		c.fail()
		c.logger.Warn("ivr type classification failed", "error", err)
		return session.TypeUnknown
	}

	var parsed struct {
		Type string `json:"type"`
	}
	if err := parseFencedJSON(raw, &parsed); err != nil {
		c.fail()
		c.logger.Warn("ivr type response not valid json", "raw", raw, "error", err)
		return session.TypeUnknown
	}

	switch t := session.IVRType(parsed.Type); t {
	case session.TypeMenu, session.TypeOpenEnded, session.TypeConfirmation, session.TypeRepeat:
		return t
	default:
		c.fail()
		c.logger.Warn("ivr type response out of vocabulary", "type", parsed.Type)
		return session.TypeUnknown
	}
}

// ShouldSpeakNow asks whether the remote system is waiting for input.
func (c *OpenAIClassifier) ShouldSpeakNow(ctx context.Context, transcript string) bool {
	raw, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleSystem,
			Content: "You are a smart IVR strategist. A bot is navigating a phone call system. " +
				"The bot can either press buttons (DTMF) or say a natural language query like " +
				"'I need to change my Delta flight.' Based on the following IVR transcript, " +
				"decide if now is a good time to speak the query.\n\n" +
				"Respond ONLY with JSON: { \"say_query_now\": true } if the system is waiting " +
				"for user input, or { \"say_query_now\": false } if it's still playing audio or " +
				"handling something else.",
		},
		{Role: openai.ChatMessageRoleUser, Content: transcript},
	})
	if err != nil {
		c.fail()
		c.logger.Warn("speak-now decision failed", "error", err)
		return false
	}

	var parsed struct {
		SayQueryNow bool `json:"say_query_now"`
	}
	if err := parseFencedJSON(raw, &parsed); err != nil {
		c.fail()
		c.logger.Warn("speak-now response not valid json", "raw", raw, "error", err)
		return false
	}
	return parsed.SayQueryNow
}

// ExtractMenu pulls the spoken digit options out of a menu transcript.
func (c *OpenAIClassifier) ExtractMenu(ctx context.Context, transcript string) map[string]string {
	raw, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleSystem,
			Content: "Extract only the spoken menu options from the transcript. " +
				"For example, if the user hears 'For reservations press 1, for baggage press 2', " +
				"return: {\"1\": \"Reservations\", \"2\": \"Baggage\"}. " +
				"Do NOT guess or hallucinate. Use only what was said exactly. " +
				"Skip non-numbered phrases. Return a flat JSON object and nothing else.",
		},
		{Role: openai.ChatMessageRoleUser, Content: transcript},
	})
	if err != nil {
		c.fail()
		c.logger.Warn("menu extraction failed", "error", err)
		return map[string]string{}
	}

	var options map[string]string
	if err := parseFencedJSON(raw, &options); err != nil {
		c.fail()
		c.logger.Warn("menu extraction response not valid json", "raw", raw, "error", err)
		return map[string]string{}
	}
	if IsFallbackMenu(options) {
		c.logger.Warn("menu extraction returned placeholder options, treating as empty")
		return map[string]string{}
	}
	if options == nil {
		return map[string]string{}
	}
	return options
}

// RephraseQuery compresses the query into a 2-5 word IVR-friendly command.
func (c *OpenAIClassifier) RephraseQuery(ctx context.Context, query string) string {
	raw, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleSystem,
			Content: "You are a voice assistant helping users navigate automated phone menus " +
				"(IVR systems).\nCompress the user's request into a short, action-oriented " +
				"phrase the system will understand.\n- Use 2-5 words max\n- Cut filler like " +
				"'please' or 'I need'\n- Output only the command\n" +
				"Example: 'Can I change my flight?' -> 'Change flight'",
		},
		{Role: openai.ChatMessageRoleUser, Content: query},
	})
	if err != nil || raw == "" {
		c.fail()
		c.logger.Warn("query rephrase failed, using raw query", "error", err)
		return query
	}
	return raw
}
