package gemini

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"github.com/phrazzld/adforge/internal/config"
	"github.com/phrazzld/adforge/internal/generation"
	"github.com/phrazzld/adforge/internal/platform/storage"
	"google.golang.org/genai"
)

// contentGenerator is the slice of the SDK the generator needs.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

var _ generation.Generator = (*ImageGenerator)(nil)

const promptTemplate = `{{.Prompt}}
{{- if .Style}}

Style: {{.Style}}
{{- end}}
{{- if .AspectRatio}}

Aspect ratio: {{.AspectRatio}}
{{- end}}
{{- if .NegativePrompt}}

Avoid: {{.NegativePrompt}}
{{- end}}
{{- if .HasReferences}}

Keep the subject, palette and composition consistent with the attached reference images.
{{- end}}`

type promptData struct {
	generation.Params
	HasReferences bool
}

// ImageGenerator produces one image per request with a Gemini model.
type ImageGenerator struct {
	models contentGenerator
	assets storage.AssetStore
	model  string
	config config.LLMConfig
	prompt *template.Template
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewImageGenerator creates a generator backed by the Gemini API.
func NewImageGenerator(
	ctx context.Context,
	cfg config.LLMConfig,
	assets storage.AssetStore,
	logger *slog.Logger,
) (*ImageGenerator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newImageGenerator(client.Models, cfg, assets, logger)
}

func newImageGenerator(
	models contentGenerator,
	cfg config.LLMConfig,
	assets storage.AssetStore,
	logger *slog.Logger,
) (*ImageGenerator, error) {
	if models == nil {
		return nil, fmt.Errorf("%w: model client cannot be nil", generation.ErrInvalidConfig)
	}
	if assets == nil {
		return nil, fmt.Errorf("%w: asset store cannot be nil", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.New("image_prompt").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", generation.ErrInvalidConfig, err)
	}

	return &ImageGenerator{
		models: models,
		assets: assets,
		model:  cfg.ModelName,
		config: cfg,
		prompt: tmpl,
		logger: logger.With("component", "gemini_generator", "model", cfg.ModelName),
		sleep:  sleepContext,
	}, nil
}

// Generate renders the prompt, attaches references, calls the model and
// stores the first returned image.
func (g *ImageGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	log := g.logger.With("task_id", req.TaskID, "job_id", req.JobID)

	contents, err := g.buildContents(ctx, req)
	if err != nil {
		return "", err
	}

	resp, err := g.callWithRetry(ctx, log, contents)
	if err != nil {
		return "", err
	}

	data, mimeType, err := extractImage(resp)
	if err != nil {
		return "", err
	}

	ref, err := g.assets.Put(ctx, storage.AssetKey(req.JobID, req.TaskID, mimeType), data, mimeType)
	if err != nil {
		return "", fmt.Errorf("%w: store generated image: %v", generation.ErrGenerationFailed, err)
	}

	log.Info("image generated", "ref", ref, "bytes", len(data), "mime_type", mimeType)
	return ref, nil
}

func (g *ImageGenerator) buildContents(ctx context.Context, req generation.Request) ([]*genai.Content, error) {
	refs := req.References()

	var buf bytes.Buffer
	if err := g.prompt.Execute(&buf, promptData{Params: req.Params, HasReferences: len(refs) > 0}); err != nil {
		return nil, fmt.Errorf("failed to execute prompt template: %w", err)
	}

	parts := make([]*genai.Part, 0, len(refs)+1)
	parts = append(parts, &genai.Part{Text: strings.TrimSpace(buf.String())})

	for _, ref := range refs {
		data, mimeType, err := g.assets.Get(ctx, ref)
		if err != nil {
			// A missing reference will not appear on retry.
			return nil, fmt.Errorf("%w: load reference %s: %v", generation.ErrInvalidRequest, ref, err)
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}})
	}

	return []*genai.Content{{Role: "user", Parts: parts}}, nil
}

// callWithRetry retries transient failures with exponential backoff and
// jitter. Rate limits, safety blocks and malformed requests return at once.
func (g *ImageGenerator) callWithRetry(
	ctx context.Context,
	log *slog.Logger,
	contents []*genai.Content,
) (*genai.GenerateContentResponse, error) {
	maxRetries := max(g.config.MaxRetries, 0)
	baseDelay := time.Duration(max(g.config.RetryDelaySeconds, 1)) * time.Second

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	for attempt := 0; ; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		mapped, retryable := classifyError(err)
		if !retryable {
			log.Warn("image model call failed", "attempt", attempt+1, "error", mapped)
			return nil, mapped
		}
		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w (after %d attempts)", mapped, attempt+1)
		}

		// delay = base * 2^attempt * [0.5, 1.0)
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)) * (0.5 + rand.Float64()*0.5)) //nolint:gosec // jitter only
		log.Info("retrying image model call", "attempt", attempt+1, "delay", delay.String(), "error", err)
		if err := g.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// extractImage returns the first inline image of the response.
func extractImage(resp *genai.GenerateContentResponse) ([]byte, string, error) {
	if resp == nil {
		return nil, "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return nil, "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, "", fmt.Errorf("%w: no candidates", generation.ErrInvalidResponse)
	}

	c := resp.Candidates[0]
	switch c.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return nil, "", fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, c.FinishReason)
	}
	if c.Content == nil {
		return nil, "", fmt.Errorf("%w: empty content", generation.ErrInvalidResponse)
	}

	for _, part := range c.Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mimeType := part.InlineData.MIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		if strings.HasPrefix(mimeType, "image/") {
			return part.InlineData.Data, mimeType, nil
		}
	}
	return nil, "", fmt.Errorf("%w: response contained no image", generation.ErrInvalidResponse)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
