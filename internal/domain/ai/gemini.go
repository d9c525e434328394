// Package ai integrates a Gemini model as an optional collaborator of the
// conversion pipeline: a last-resort extraction strategy over raw page text
// and a quality-review pass over the merged table. Every failure here is
// recoverable; the pipeline keeps its heuristic result.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conversor-edc/backend/internal/domain/convert/schema"
	"github.com/conversor-edc/backend/internal/domain/extract"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// ErrEmptyResponse means the model answered without any usable rows payload.
var ErrEmptyResponse = errors.New("model returned no usable rows")

// Config holds the Gemini client settings. An empty APIKey disables the
// collaborator entirely.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	Timeout      time.Duration
	PagesPerCall int
}

// Client talks to the Gemini generateContent endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds a Gemini client. Returns nil when no API key is
// configured so callers can wire the collaborator conditionally.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PagesPerCall <= 0 {
		cfg.PagesPerCall = 3
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

const extractPrompt = `Eres un asistente que extrae movimientos de estados de cuenta bancarios mexicanos.
Del siguiente texto extrae todos los movimientos y responde UNICAMENTE con JSON:
{"rows":[{"Fecha de Operacion":"YYYY-MM-DD","Fecha de Cargo":"YYYY-MM-DD","Descripcion":"...","Referencia":"...","Cargos":"0.00","Abonos":"0.00","Monto":"0.00","Categoria":"..."}]}
Omite llaves sin valor. Usa punto decimal y dos decimales en los montos.

TEXTO:
`

const reviewPrompt = `Eres un asistente que revisa movimientos extraidos de un estado de cuenta bancario mexicano.
Corrige descripciones truncadas, fechas mal interpretadas y montos con separadores confundidos.
No inventes movimientos ni elimines los existentes. Responde UNICAMENTE con JSON:
{"rows":[...]} con las mismas llaves de entrada.

MOVIMIENTOS:
`

// Name implements the pipeline strategy contract.
func (c *Client) Name() string { return "ai" }

// Extract sends the raw page text to the model in page batches and collects
// the rows it returns. A failed batch is logged and skipped.
func (c *Client) Extract(ctx context.Context, doc *extract.Document) ([]schema.Batch, error) {
	var batches []schema.Batch
	for start := 0; start < len(doc.Pages); start += c.cfg.PagesPerCall {
		end := start + c.cfg.PagesPerCall
		if end > len(doc.Pages) {
			end = len(doc.Pages)
		}
		var sb strings.Builder
		for _, page := range doc.Pages[start:end] {
			for _, line := range page.Lines {
				sb.WriteString(line)
				sb.WriteByte('\n')
			}
		}
		if strings.TrimSpace(sb.String()) == "" {
			continue
		}

		rows, err := c.requestRows(ctx, extractPrompt+sb.String())
		if err != nil {
			c.logger.Warn("ai extraction batch failed",
				slog.Int("first_page", start+1), slog.Any("error", err))
			continue
		}
		if batch, ok := rowsToBatch("ai", rows); ok {
			batches = append(batches, batch)
		}
	}
	return batches, nil
}

// Review implements pipeline.QualityChecker: the merged table goes to the
// model for correction and comes back under the same schema. Any parsing or
// transport failure is returned to the caller, which keeps the original.
func (c *Client) Review(ctx context.Context, table schema.Table) (schema.Table, error) {
	payload, err := json.Marshal(tableToRows(table))
	if err != nil {
		return schema.Table{}, fmt.Errorf("encode table: %w", err)
	}

	rows, err := c.requestRows(ctx, reviewPrompt+string(payload))
	if err != nil {
		return schema.Table{}, err
	}

	batch, ok := rowsToBatch("ai/review", rows)
	if !ok {
		return schema.Table{}, ErrEmptyResponse
	}
	return schema.Align([]schema.Batch{batch}), nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// rowsPayload is the JSON contract shared by both prompts.
type rowsPayload struct {
	Rows []map[string]string `json:"rows"`
}

func (c *Client) requestRows(ctx context.Context, prompt string) ([]map[string]string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	text := stripFences(gr.Candidates[0].Content.Parts[0].Text)
	var payload rowsPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if len(payload.Rows) == 0 {
		return nil, ErrEmptyResponse
	}
	return payload.Rows, nil
}

// rowsToBatch converts model rows into a schema batch, keeping only keys
// that resolve to a canonical role.
func rowsToBatch(source string, rows []map[string]string) (schema.Batch, bool) {
	roleSet := make(map[schema.Role]bool)
	batch := schema.Batch{Source: source}
	for _, raw := range rows {
		row := make(schema.Row)
		for key, value := range raw {
			role, ok := schema.RoleForLabel(key)
			if !ok || strings.TrimSpace(value) == "" {
				continue
			}
			row[role] = strings.TrimSpace(value)
			roleSet[role] = true
		}
		if row.Empty() {
			continue
		}
		batch.Rows = append(batch.Rows, row)
	}
	for _, r := range schema.CanonicalOrder {
		if roleSet[r] {
			batch.Roles = append(batch.Roles, r)
		}
	}
	return batch, len(batch.Rows) > 0
}

func tableToRows(t schema.Table) rowsPayload {
	out := rowsPayload{Rows: make([]map[string]string, 0, len(t.Rows))}
	for _, row := range t.Rows {
		m := make(map[string]string, len(row))
		for _, role := range t.Roles {
			if v, ok := row[role]; ok && v != "" {
				m[schema.Labels[role]] = v
			}
		}
		out.Rows = append(out.Rows, m)
	}
	return out
}

// stripFences removes a surrounding markdown code fence from the model text.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
