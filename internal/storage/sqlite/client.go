package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/supportiq/backend/internal/storage/models"
	"github.com/supportiq/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		ticket_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		customer_id TEXT,
		category TEXT,
		channel TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		customer_tier TEXT,
		sla_hours INTEGER,
		priority_score REAL,
		priority_label TEXT,
		triage_reasoning TEXT,
		sla_breach_risk REAL,
		deployment_correlation TEXT,
		resolution_draft TEXT,
		resolution_confidence REAL,
		critic_score REAL,
		resolution_attempts INTEGER DEFAULT 0,
		resolution_final TEXT,
		resolved_by TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
	CREATE INDEX IF NOT EXISTS idx_tickets_category ON tickets(category);
	CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at);

	CREATE TABLE IF NOT EXISTS pipeline_traces (
		trace_id TEXT PRIMARY KEY,
		ticket_id TEXT NOT NULL,
		final_decision TEXT NOT NULL,
		final_resolution TEXT,
		total_duration_ms INTEGER,
		error TEXT,
		steps TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_traces_ticket ON pipeline_traces(ticket_id);
	CREATE INDEX IF NOT EXISTS idx_traces_created ON pipeline_traces(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertTicket(ctx context.Context, t *models.Ticket) error {
	query := `
		INSERT INTO tickets (ticket_id, title, description, customer_id, category, channel, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticket_id) DO NOTHING
	`

	now := time.Now().Unix()
	createdAt := t.CreatedAt.Unix()
	if t.CreatedAt.IsZero() {
		createdAt = now
	}

	_, err := c.db.ExecContext(ctx, query,
		t.TicketID,
		t.Title,
		t.Description,
		t.CustomerID,
		t.Category,
		t.Channel,
		models.StatusOpen,
		createdAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}

	logger.Debug("Ticket inserted", zap.String("ticket_id", t.TicketID))
	return nil
}

// ticketColumns whitelists the columns UpdateTicket may touch.
var ticketColumns = map[string]bool{
	"status":                 true,
	"category":               true,
	"customer_tier":          true,
	"sla_hours":              true,
	"priority_score":         true,
	"priority_label":         true,
	"triage_reasoning":       true,
	"sla_breach_risk":        true,
	"deployment_correlation": true,
	"resolution_draft":       true,
	"resolution_confidence":  true,
	"critic_score":           true,
	"resolution_attempts":    true,
	"resolution_final":       true,
	"resolved_by":            true,
}

// UpdateTicket applies a partial field update. Unknown fields are skipped
// with a warning rather than failing the write.
func (c *Client) UpdateTicket(ctx context.Context, ticketID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if !ticketColumns[name] {
			logger.Warn("Skipping unknown ticket field", zap.String("field", name))
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	setClauses := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+2)
	for _, name := range names {
		value := fields[name]
		// Structured values are stored as JSON text.
		switch value.(type) {
		case nil, string, int, int64, float64, bool:
		default:
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode field %q: %w", name, err)
			}
			value = string(data)
		}
		setClauses = append(setClauses, name+" = ?")
		args = append(args, value)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().Unix(), ticketID)

	query := fmt.Sprintf("UPDATE tickets SET %s WHERE ticket_id = ?", strings.Join(setClauses, ", "))

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}

	logger.Debug("Ticket updated",
		zap.String("ticket_id", ticketID),
		zap.Strings("fields", names),
	)
	return nil
}

func (c *Client) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, string, error) {
	query := `
		SELECT ticket_id, title, description, customer_id, category, channel, status, created_at
		FROM tickets WHERE ticket_id = ?
	`

	var t models.Ticket
	var status string
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, ticketID).Scan(
		&t.TicketID,
		&t.Title,
		&t.Description,
		&t.CustomerID,
		&t.Category,
		&t.Channel,
		&status,
		&createdAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get ticket: %w", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, status, nil
}

func (c *Client) WriteTrace(ctx context.Context, trace *models.PipelineTrace) error {
	steps, err := json.Marshal(trace.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode trace steps: %w", err)
	}

	query := `
		INSERT INTO pipeline_traces (trace_id, ticket_id, final_decision, final_resolution, total_duration_ms, error, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(ctx, query,
		trace.TraceID,
		trace.TicketID,
		string(trace.FinalDecision),
		trace.FinalResolution,
		trace.TotalDurationMS,
		trace.Error,
		string(steps),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}

	logger.Info("Trace persisted",
		zap.String("trace_id", trace.TraceID),
		zap.String("ticket_id", trace.TicketID),
		zap.String("decision", string(trace.FinalDecision)),
	)
	return nil
}

func (c *Client) GetTraces(ctx context.Context, ticketID string) ([]models.PipelineTrace, error) {
	query := `
		SELECT trace_id, ticket_id, final_decision, final_resolution, total_duration_ms, error, steps
		FROM pipeline_traces
		WHERE ticket_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get traces: %w", err)
	}
	defer rows.Close()

	var traces []models.PipelineTrace
	for rows.Next() {
		var trace models.PipelineTrace
		var decision, steps string

		err := rows.Scan(
			&trace.TraceID,
			&trace.TicketID,
			&decision,
			&trace.FinalResolution,
			&trace.TotalDurationMS,
			&trace.Error,
			&steps,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trace row: %w", err)
		}

		trace.FinalDecision = models.Decision(decision)
		if err := json.Unmarshal([]byte(steps), &trace.Steps); err != nil {
			logger.Warn("Failed to decode trace steps", zap.String("trace_id", trace.TraceID), zap.Error(err))
		}
		traces = append(traces, trace)
	}

	return traces, rows.Err()
}
