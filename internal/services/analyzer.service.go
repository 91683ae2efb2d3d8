package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"healthcompanion/internal/models"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	foodAnalysisPrompt = `You are an expert nutritionist. Analyze the attached food image.
Identify the foods, estimate the nutritional content of the whole portion and rate it.

Respond with JSON only, no prose:
{"summary": "<one sentence description>", "findings": {"<category>": <value>}}

Use these categories where they apply: calories, sodium_mg, sugar_g, saturated_fat_g,
protein_g, fiber_g, sodium, sugar, saturated_fat, processed_food.
Numeric categories carry a number. Rated categories carry one of:
none, low, moderate, high, very_high.`

	medicalAnalysisPrompt = `You are a medical document assistant providing information only.
Read the attached medical document and extract the key measured values and findings.

Respond with JSON only, no prose:
{"summary": "<one sentence description>", "findings": {"<category>": <value>}}

Use these categories where they apply: glucose_mg_dl, ldl_mg_dl, hdl_mg_dl,
cholesterol_mg_dl, triglycerides_mg_dl, systolic_mmhg, diastolic_mmhg, a1c,
plus a rated risk per abnormal area (e.g. cardiovascular_risk) using one of:
none, low, moderate, high, very_high.`
)

// AnalysisOutput is what a content analyzer extracts from one artifact.
type AnalysisOutput struct {
	Findings models.Findings
	Summary  string
}

// ContentAnalyzer is the boundary to the AI analysis collaborator. Errors
// wrapped with Transient are retried by the pipeline.
type ContentAnalyzer interface {
	AnalyzeContent(ctx context.Context, event models.UploadEvent) (*AnalysisOutput, error)
}

// ContentGenerator is satisfied by genai's Models service.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

type GeminiAnalyzerConfig struct {
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
}

type GeminiAnalyzer struct {
	generator ContentGenerator
	store     ArtifactStore
	config    GeminiAnalyzerConfig
	limiter   *rate.Limiter
	log       logger.Logger
}

func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	log := logger.New("geminiAnalyzer").Function("NewGeminiClient")

	if apiKey == "" {
		return nil, log.ErrMsg("GEMINI_API_KEY is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, log.Err("failed to create gemini client", err)
	}
	return client, nil
}

func NewGeminiAnalyzer(
	generator ContentGenerator,
	store ArtifactStore,
	config GeminiAnalyzerConfig,
) *GeminiAnalyzer {
	limit := rate.Inf
	burst := 1
	if config.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
		burst = max(1, config.RequestsPerMinute/10)
	}

	return &GeminiAnalyzer{
		generator: generator,
		store:     store,
		config:    config,
		limiter:   rate.NewLimiter(limit, burst),
		log:       logger.New("geminiAnalyzer"),
	}
}

func (a *GeminiAnalyzer) AnalyzeContent(
	ctx context.Context,
	event models.UploadEvent,
) (*AnalysisOutput, error) {
	log := a.log.TraceFromContext(ctx).Function("AnalyzeContent")

	prompt, ok := promptFor(event.Kind)
	if !ok {
		return nil, log.Err("cannot analyze artifact", ErrUnsupportedKind, "artifactRef", event.ArtifactRef, "kind", event.Kind)
	}

	callCtx := ctx
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	if err := a.limiter.Wait(callCtx); err != nil {
		return nil, Transient(fmt.Errorf("rate limiter: %w", err))
	}

	data, mimeType, err := a.store.Read(callCtx, event.ArtifactRef)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	generateConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	}

	start := time.Now()
	response, err := a.generator.GenerateContent(callCtx, a.config.Model, contents, generateConfig)
	if err != nil {
		classified := classifyGenerateError(err)
		log.Warn("analyzer call failed",
			"artifactRef", event.ArtifactRef,
			"retryable", IsRetryable(classified),
			"elapsed", time.Since(start),
			"error", err)
		return nil, classified
	}

	output, err := parseAnalysisOutput(responseText(response))
	if err != nil {
		return nil, log.Err("failed to parse analyzer output", err, "artifactRef", event.ArtifactRef)
	}

	log.Info("artifact analyzed",
		"artifactRef", event.ArtifactRef,
		"findings", len(output.Findings),
		"elapsed", time.Since(start))
	return output, nil
}

func promptFor(kind models.ArtifactKind) (string, bool) {
	switch kind {
	case models.ArtifactKindFoodImage:
		return foodAnalysisPrompt, true
	case models.ArtifactKindMedicalDocument:
		return medicalAnalysisPrompt, true
	default:
		return "", false
	}
}

// classifyGenerateError maps a model call failure onto the transient or
// permanent side of the retry policy.
func classifyGenerateError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}

	if code != 0 {
		if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 {
			return Transient(err)
		}
		return err
	}

	// Connection-level failures never reached the model.
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Transient(err)
	}

	return err
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 {
		return ""
	}
	candidate := response.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			builder.WriteString(part.Text)
		}
	}
	return builder.String()
}

type rawAnalysis struct {
	Summary  string                     `json:"summary"`
	Findings map[string]json.RawMessage `json:"findings"`
}

func parseAnalysisOutput(text string) (*AnalysisOutput, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedAnalysis)
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}

	findings := make(models.Findings, len(raw.Findings))
	for category, value := range raw.Findings {
		category = strings.ToLower(strings.TrimSpace(category))
		if category == "" {
			continue
		}

		var number decimal.Decimal
		if err := json.Unmarshal(value, &number); err == nil {
			findings[category] = number.String()
			continue
		}

		var text string
		if err := json.Unmarshal(value, &text); err == nil {
			findings[category] = strings.TrimSpace(text)
			continue
		}

		return nil, fmt.Errorf("%w: finding %q is neither text nor number", ErrMalformedAnalysis, category)
	}

	return &AnalysisOutput{
		Findings: findings,
		Summary:  strings.TrimSpace(raw.Summary),
	}, nil
}

func cleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
