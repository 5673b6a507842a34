package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/supportiq/backend/pkg/logger"
	"github.com/supportiq/backend/pkg/retry"
)

// workflowPaths maps action names to the workflow endpoints behind the
// Kibana workflow engine.
var workflowPaths = map[string]string{
	"crm_update":  "/supportiq/resolve",
	"ghost_alert": "/supportiq/ghost-alert",
	"kb_draft":    "/supportiq/kb-draft",
	"feedback":    "/supportiq/feedback",
}

var severityEmojis = map[string]string{
	"info":     "robot_face",
	"draft":    "pencil",
	"critical": "sos",
	"alert":    "rotating_light",
}

type Dispatcher struct {
	kibanaURL       string
	apiKey          string
	slackWebhookURL string
	httpClient      *http.Client
}

func NewDispatcher(kibanaURL, apiKey, slackWebhookURL string, timeout time.Duration) *Dispatcher {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		kibanaURL:       strings.TrimRight(kibanaURL, "/"),
		apiKey:          apiKey,
		slackWebhookURL: slackWebhookURL,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// TriggerAction fires a named workflow with the given payload. An unknown
// action logs a warning and returns nil so a bad action name never fails
// the run that requested it.
func (d *Dispatcher) TriggerAction(ctx context.Context, action string, payload map[string]any) error {
	path, ok := workflowPaths[action]
	if !ok {
		logger.Warn("Unknown workflow action, skipping", zap.String("action", action))
		return nil
	}

	url := d.kibanaURL + "/api/workflows/execute" + path

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode workflow payload: %w", err)
	}

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = 250 * time.Millisecond
	cfg.Logger = logger.GetLogger()

	err = retry.Do(ctx, cfg, func() error {
		return d.post(ctx, url, body)
	})
	if err != nil {
		return fmt.Errorf("failed to trigger workflow %s: %w", action, err)
	}

	logger.Info("Workflow triggered", zap.String("action", action))
	return nil
}

// Notify posts a Slack message with an emoji chosen by severity. It is a
// no-op when no webhook URL is configured.
func (d *Dispatcher) Notify(ctx context.Context, text, severity string) error {
	if d.slackWebhookURL == "" {
		return nil
	}

	emoji, ok := severityEmojis[severity]
	if !ok {
		emoji = severityEmojis["info"]
	}

	body, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf(":%s: %s", emoji, text),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.slackWebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("kbn-xsrf", "true")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call workflow endpoint: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("workflow endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
