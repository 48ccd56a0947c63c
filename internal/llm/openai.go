package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

// Defaults for the OpenAI-compatible validator.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-4o-mini"
	DefaultMaxRetries = 3
	DefaultBackoff    = time.Second

	maxPromptText = 4000
)

// Config configures OpenAIValidator.
type Config struct {
	BaseURL         string  // default https://api.openai.com/v1
	APIKey          string  // falls back to OPENAI_API_KEY
	Model           string  // vision-capable chat model
	Temperature     float64 // 0 keeps answers repeatable
	MaxRetries      int     // total attempts per call
	Backoff         time.Duration
	LenientOptional bool
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// DefaultConfig returns the validator defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Model:           DefaultModel,
		MaxRetries:      DefaultMaxRetries,
		Backoff:         DefaultBackoff,
		LenientOptional: true,
	}
}

// OpenAIValidator calls an OpenAI-compatible /chat/completions endpoint with
// the page image attached as a data URL.
type OpenAIValidator struct {
	cfg   Config
	http  *http.Client
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOpenAI builds a validator. It fails when no API key is configured.
func NewOpenAI(cfg Config) (*OpenAIValidator, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, &ValidatorError{Code: CodeUnavailable, Err: errors.New("no API key configured")}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIValidator{cfg: cfg, http: httpClient, log: logger, sleep: sleepCtx}, nil
}

// Validate asks the model to read the document fields.
func (v *OpenAIValidator) Validate(ctx context.Context, image []byte, ocrText string) (*Candidate, error) {
	schema := CandidateSchema()
	prompt := validatePrompt(ocrText)
	var out Candidate
	if err := v.call(ctx, "validate", schema, prompt, image, &out); err != nil {
		return nil, err
	}
	out.Confidence = document.Clamp01(out.Confidence)
	return &out, nil
}

// Reconcile asks the model to decide between two readings of the document.
func (v *OpenAIValidator) Reconcile(ctx context.Context, image []byte, regex, llm document.Fields) (*Reconciled, error) {
	schema := ReconcileSchema()
	prompt := reconcilePrompt(regex, llm)
	var out Reconciled
	if err := v.call(ctx, "reconcile", schema, prompt, image, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call runs one logical request with retries. Transport errors, 5xx, 429 and
// unparsable answers are retried with exponential backoff.
func (v *OpenAIValidator) call(ctx context.Context, op string, schema map[string]any, prompt string, image []byte, out any) error {
	body := v.requestBody(schema, prompt, image)
	backoff := v.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= v.cfg.MaxRetries; attempt++ {
		content, err := v.complete(ctx, op, attempt, body)
		if err == nil {
			err = v.decode(op, schema, content, out)
			if err == nil {
				validatorCalls.WithLabelValues(op, "ok").Inc()
				return nil
			}
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = timeoutOrUnavailable(ctxErr)
			break
		}
		if !retryable(err) || attempt == v.cfg.MaxRetries {
			break
		}
		if err := v.sleep(ctx, backoff); err != nil {
			lastErr = timeoutOrUnavailable(err)
			break
		}
		backoff *= 2
	}
	code := CodeOf(lastErr)
	validatorCalls.WithLabelValues(op, code).Inc()
	v.log.Error("llm validator failed", "op", op, "code", code, "error", lastErr)
	return lastErr
}

func timeoutOrUnavailable(err error) *ValidatorError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ValidatorError{Code: CodeTimeout, Err: err}
	}
	return &ValidatorError{Code: CodeUnavailable, Err: err}
}

// statusError is a non-2xx answer.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	var ve *ValidatorError
	if errors.As(err, &ve) {
		return ve.Code != CodeTimeout
	}
	return true
}

func (v *OpenAIValidator) requestBody(schema map[string]any, prompt string, image []byte) map[string]any {
	user := []map[string]any{{"type": "text", "text": prompt}}
	if len(image) > 0 {
		user = append(user, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": dataURL(image)},
		})
	}
	return map[string]any{
		"model":           v.cfg.Model,
		"temperature":     v.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
			{"role": "user", "content": user},
		},
	}
}

// complete sends one chat completion and returns the message content.
func (v *OpenAIValidator) complete(ctx context.Context, op string, attempt int, body map[string]any) (string, error) {
	reqID := uuid.New().String()
	start := time.Now()

	b, err := json.Marshal(body)
	if err != nil {
		return "", &ValidatorError{Code: CodeUnavailable, Err: fmt.Errorf("marshal request: %w", err)}
	}
	endpoint := strings.TrimRight(v.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", &ValidatorError{Code: CodeUnavailable, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	resp, err := v.http.Do(req)
	if err != nil {
		v.log.Error("llm http error", "op", op, "req_id", reqID, "attempt", attempt, "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return "", timeoutOrUnavailable(err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			v.log.Warn("llm response body close error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", timeoutOrUnavailable(err)
	}
	if resp.StatusCode/100 != 2 {
		v.log.Error("llm http status", "op", op, "req_id", reqID, "attempt", attempt, "status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
		return "", &ValidatorError{Code: CodeUnavailable, Err: &statusError{status: resp.StatusCode, body: truncate(string(raw), 200)}}
	}
	v.log.Debug("llm http response", "op", op, "req_id", reqID, "attempt", attempt, "bytes", len(raw),
		"duration_ms", time.Since(start).Milliseconds())

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", newError(CodeParseError, "decode completion: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", newError(CodeParseError, "no choices in response")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// decode validates content against schema, optionally after a lenient
// sanitize, and unmarshals it into out.
func (v *OpenAIValidator) decode(op string, schema map[string]any, content string, out any) error {
	data := []byte(stripFence(content))
	if err := ValidateJSON(schema, data); err != nil {
		if !v.cfg.LenientOptional {
			return &ValidatorError{Code: CodeParseError, Err: err}
		}
		cleaned, dropped, sErr := SanitizeOptionalFields(data)
		if sErr != nil {
			return newError(CodeParseError, "sanitize: %w", sErr)
		}
		if vErr := ValidateJSON(schema, cleaned); vErr != nil {
			return &ValidatorError{Code: CodeParseError, Err: vErr}
		}
		v.log.Warn("llm lenient sanitize applied", "op", op, "dropped", dropped)
		data = cleaned
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newError(CodeParseError, "unmarshal fields: %w", err)
	}
	return nil
}

const systemPrompt = "You read Japanese receipts (領収書) and invoices (請求書). " +
	"Return ONLY a JSON object that matches the JSON Schema provided. " +
	"vendor_name is the issuer of the document, never the addressee (lines with 御中, 様 or 殿). " +
	"issue_date is YYYYMMDD in the Gregorian calendar; 令和N年 is year 2018+N. " +
	"amount is the tax-included total in yen as an integer, never change or deposit. " +
	"invoice_number is T followed by 13 digits, or empty. " +
	"Use an empty string or 0 when a field is not visible."

func validatePrompt(ocrText string) string {
	var b strings.Builder
	b.WriteString("Extract the document fields from the attached page image. ")
	b.WriteString("Report your confidence in [0,1] and a one-sentence reasoning.\n\n")
	b.WriteString("OCR text (may contain errors):\n")
	b.WriteString(truncate(ocrText, maxPromptText))
	return b.String()
}

func reconcilePrompt(regex, llm document.Fields) string {
	var b strings.Builder
	b.WriteString("Two readings of the attached document disagree. ")
	b.WriteString("For every field decide the correct value from the image and ")
	b.WriteString("explain each decision in reasons, keyed by field name.\n\n")
	b.WriteString("Reading A (pattern rules):\n")
	b.WriteString(mustJSON(regex))
	b.WriteString("\n\nReading B (model):\n")
	b.WriteString(mustJSON(llm))
	return b.String()
}

func dataURL(image []byte) string {
	return "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}

// stripFence removes a ```json fence some models wrap around their answer.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
