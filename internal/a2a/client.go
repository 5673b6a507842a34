package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supportiq/backend/pkg/circuitbreaker"
	"github.com/supportiq/backend/pkg/logger"
)

const maxErrorBody = 512

// Client speaks the A2A protocol against Agent Builder. Each provider
// exposes a card endpoint (GET {id}.json) and a message endpoint (POST {id}).
type Client struct {
	kibanaURL  string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker

	mu    sync.RWMutex
	cards map[Provider]*AgentCard
}

// Payload is the result of best-effort JSON extraction from a provider
// reply. Fields is nil when the text was not parseable as a JSON object;
// Raw always holds the original text.
type Payload struct {
	Fields map[string]any
	Raw    string
}

func (p Payload) Parsed() bool {
	return p.Fields != nil
}

// Decode unmarshals the structured fields into v.
func (p Payload) Decode(v any) error {
	if p.Fields == nil {
		return fmt.Errorf("payload is not structured JSON")
	}
	data, err := json.Marshal(p.Fields)
	if err != nil {
		return fmt.Errorf("failed to re-encode payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

type Response struct {
	Provider  Provider
	SessionID string
	RequestID string
	Text      string
	Payload   Payload
	Duration  time.Duration
	// Success is false when the reply text could not be parsed as JSON.
	// That is a degraded return, not an error.
	Success bool
}

type SendOptions struct {
	Context   map[string]any
	SessionID string
	Timeout   time.Duration
}

type AgentCard struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	URL         string `json:"url"`
}

type ProviderStatus struct {
	Status   string `json:"status"`
	Name     string `json:"name,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewClient(kibanaURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	cb := circuitbreaker.New("a2a", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	return &Client{
		kibanaURL:  strings.TrimRight(kibanaURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
		cb:         cb,
		cards:      make(map[Provider]*AgentCard),
	}
}

type messagePart struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type rpcMessage struct {
	Role      string        `json:"role"`
	Parts     []messagePart `json:"parts"`
	MessageID string        `json:"messageId"`
}

type rpcParams struct {
	Message   rpcMessage `json:"message"`
	SessionID string     `json:"sessionId"`
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	ID      string    `json:"id"`
	Params  rpcParams `json:"params"`
}

// Send posts a message to a provider and returns its parsed reply.
// Retries, if any, are the caller's concern.
func (c *Client) Send(ctx context.Context, provider Provider, message string, opts SendOptions) (*Response, error) {
	agentID, ok := agentIDs[provider]
	if !ok {
		return nil, &UnknownProviderError{Provider: provider}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parts := []messagePart{{Kind: "text", Text: message}}
	if len(opts.Context) > 0 {
		contextJSON, err := json.MarshalIndent(opts.Context, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode message context: %w", err)
		}
		parts = append(parts, messagePart{
			Kind: "text",
			Text: "\n\nContext:\n" + string(contextJSON),
		})
	}

	requestID := uuid.New().String()
	session := opts.SessionID
	if session == "" {
		session = uuid.New().String()
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "message/send",
		ID:      requestID,
		Params: rpcParams{
			Message: rpcMessage{
				Role:      "user",
				Parts:     parts,
				MessageID: uuid.New().String(),
			},
			SessionID: session,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/api/agent_builder/a2a/%s", c.kibanaURL, agentID)

	start := time.Now()
	var raw []byte

	err = c.cb.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call provider %q: %w", provider, err)
		}
		defer resp.Body.Close()

		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read provider response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return &CallFailedError{
				Provider:   provider,
				StatusCode: resp.StatusCode,
				Body:       truncate(string(raw), maxErrorBody),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	duration := time.Since(start)
	text := extractText(raw)
	payload := parsePayload(text)

	logger.Debug("Provider responded",
		zap.String("provider", string(provider)),
		zap.Duration("duration", duration),
		zap.Bool("parsed", payload.Parsed()),
	)

	return &Response{
		Provider:  provider,
		SessionID: session,
		RequestID: requestID,
		Text:      text,
		Payload:   payload,
		Duration:  duration,
		Success:   payload.Parsed(),
	}, nil
}

// Card fetches a provider's agent card, memoized for the client's lifetime.
func (c *Client) Card(ctx context.Context, provider Provider) (*AgentCard, error) {
	agentID, ok := agentIDs[provider]
	if !ok {
		return nil, &UnknownProviderError{Provider: provider}
	}

	c.mu.RLock()
	card, found := c.cards[provider]
	c.mu.RUnlock()
	if found {
		return card, nil
	}

	url := fmt.Sprintf("%s/api/agent_builder/a2a/%s.json", c.kibanaURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build card request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch card for %q: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &CallFailedError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
		}
	}

	card = &AgentCard{}
	if err := json.NewDecoder(resp.Body).Decode(card); err != nil {
		return nil, fmt.Errorf("failed to decode card for %q: %w", provider, err)
	}

	c.mu.Lock()
	c.cards[provider] = card
	c.mu.Unlock()

	return card, nil
}

// PingAll checks every provider on the roster via its card endpoint.
func (c *Client) PingAll(ctx context.Context) map[Provider]ProviderStatus {
	results := make(map[Provider]ProviderStatus, len(agentIDs))
	for _, provider := range Providers() {
		card, err := c.Card(ctx, provider)
		if err != nil {
			results[provider] = ProviderStatus{Status: "error", Error: err.Error()}
			continue
		}
		results[provider] = ProviderStatus{
			Status:   "online",
			Name:     card.Name,
			Endpoint: fmt.Sprintf("%s/api/agent_builder/a2a/%s", c.kibanaURL, agentIDs[provider]),
		}
	}
	return results
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	req.Header.Set("kbn-xsrf", "true")
}

// extractText pulls the text parts out of the A2A response envelope
// (result.status.message.parts[].text). A malformed or empty envelope
// falls back to the raw body.
func extractText(raw []byte) string {
	var env struct {
		Result struct {
			Status struct {
				Message struct {
					Parts []messagePart `json:"parts"`
				} `json:"message"`
			} `json:"status"`
		} `json:"result"`
	}

	if err := json.Unmarshal(raw, &env); err == nil {
		var texts []string
		for _, part := range env.Result.Status.Message.Parts {
			if part.Kind == "text" && part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		if len(texts) > 0 {
			return strings.TrimSpace(strings.Join(texts, " "))
		}
	}

	return string(raw)
}

// parsePayload strips a single fenced code block if present and attempts
// to parse the remainder as a JSON object.
func parsePayload(text string) Payload {
	clean := strings.TrimSpace(text)

	if strings.HasPrefix(clean, "```") {
		segments := strings.SplitN(clean, "```", 3)
		if len(segments) >= 2 {
			clean = strings.TrimPrefix(segments[1], "json")
		}
	}
	clean = strings.TrimSpace(clean)

	var fields map[string]any
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return Payload{Raw: text}
	}
	return Payload{Fields: fields, Raw: text}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
