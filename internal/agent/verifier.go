package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/resume-autofill/internal/llm"
	"github.com/spigell/resume-autofill/internal/utils"
)

type visionAsker interface {
	Vision(ctx context.Context, messages []llm.Message, images ...llm.Image) (string, error)
}

//go:embed verify.md
var verifyTemplate string

const defaultMaxLogLength = 200

// Verdict is the vision model's judgement of the final screenshot.
type Verdict struct {
	Submitted  bool    `json:"submitted"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Raw        string  `json:"-"`
}

// Verifier asks a vision model whether the run ended on a submitted form.
type Verifier struct {
	client        visionAsker
	logger        *zap.Logger
	minConfidence float64
	maxLogLen     int
}

func NewVerifier(client visionAsker, logger *zap.Logger, minConfidence float64, maxLogLength int) *Verifier {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Verifier{
		client:        client,
		logger:        logger,
		minConfidence: minConfidence,
		maxLogLen:     maxLogLength,
	}
}

func (v *Verifier) Verify(ctx context.Context, screenshot, jobURL, lastStep string) (*Verdict, error) {
	if strings.TrimSpace(screenshot) == "" {
		return nil, errors.New("screenshot path is required")
	}

	img, err := loadImage(screenshot)
	if err != nil {
		return nil, err
	}

	prompt := buildVerifyPrompt(jobURL, lastStep)

	v.logger.Debug("vision verify request",
		zap.String("screenshot", screenshot),
		zap.Int("image_bytes", len(img.Data)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	raw, err := v.client.Vision(ctx, []llm.Message{llm.UserMessage(prompt)}, img)
	if err != nil {
		return nil, err
	}

	v.logger.Debug("vision verify response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, v.maxLogLen)),
	)

	verdict, err := parseVerdict(raw)
	if err != nil {
		return nil, err
	}

	if v.minConfidence > 0 && verdict.Submitted && verdict.Confidence < v.minConfidence {
		v.logger.Debug("set submitted to false by confidence threshold",
			zap.Float64("confidence", verdict.Confidence),
			zap.Float64("threshold", v.minConfidence),
		)
		verdict.Submitted = false
	}

	verdict.Raw = raw
	return verdict, nil
}

func loadImage(path string) (llm.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return llm.Image{}, fmt.Errorf("read screenshot: %w", err)
	}
	if len(data) == 0 {
		return llm.Image{}, fmt.Errorf("screenshot %q is empty", path)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/png"
	}
	return llm.Image{Data: data, MIMEType: mimeType}, nil
}

func buildVerifyPrompt(jobURL, lastStep string) string {
	if strings.TrimSpace(lastStep) == "" {
		lastStep = "(nothing reported)"
	}
	return strings.NewReplacer(
		"{{JOB_URL}}", strings.TrimSpace(jobURL),
		"{{LAST_STEP}}", strings.TrimSpace(lastStep),
	).Replace(verifyTemplate)
}

func parseVerdict(raw string) (*Verdict, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse vision response: %w", err)
	}

	confidence := coerceFloat(data["confidence"])
	if math.IsNaN(confidence) {
		confidence = 0
	}

	return &Verdict{
		Submitted:  coerceBool(data["submitted"]),
		Confidence: math.Max(0, math.Min(1, confidence)),
		Reason:     coerceString(data["reason"]),
	}, nil
}

// extractJSON strips code fences and any prose around the first JSON object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "%"), 64)
		if err != nil {
			return math.NaN()
		}
		if strings.HasSuffix(trimmed, "%") {
			f /= 100
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
