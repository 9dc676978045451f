package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// OCREngine turns an image file into the engine's native structured output.
type OCREngine interface {
	Recognize(ctx context.Context, imagePath string) (json.RawMessage, error)
}

// CommandEngineConfig configures an OCR engine driven through a CLI that
// prints JSON on stdout. Args may contain the placeholders {input}, {lang}
// and {gpu}.
type CommandEngineConfig struct {
	Command string
	Args    []string
	Lang    string
	UseGPU  bool
}

// DefaultOCRArgs is used when no args are configured.
var DefaultOCRArgs = []string{"--image", "{input}", "--lang", "{lang}", "--use-gpu={gpu}", "--cls"}

// CommandEngine runs an external OCR command
type CommandEngine struct {
	cfg    CommandEngineConfig
	runner Runner
}

// NewCommandEngine creates a CommandEngine. A nil runner uses os/exec.
func NewCommandEngine(cfg CommandEngineConfig, runner Runner, logger *slog.Logger) *CommandEngine {
	if cfg.Command == "" {
		cfg.Command = "paddleocr-json"
	}
	if len(cfg.Args) == 0 {
		cfg.Args = DefaultOCRArgs
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &CommandEngine{cfg: cfg, runner: runner}
}

func (e *CommandEngine) args(imagePath string) []string {
	r := strings.NewReplacer(
		"{input}", imagePath,
		"{lang}", e.cfg.Lang,
		"{gpu}", strconv.FormatBool(e.cfg.UseGPU),
	)
	out := make([]string, len(e.cfg.Args))
	for i, a := range e.cfg.Args {
		out[i] = r.Replace(a)
	}
	return out
}

// Recognize runs the engine and returns its stdout unchanged once it is known to be JSON.
func (e *CommandEngine) Recognize(ctx context.Context, imagePath string) (json.RawMessage, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Command, e.args(imagePath)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ocr engine: %w", ctxErr)
		}
		msg := strings.TrimSpace(string(errb))
		if msg == "" {
			return nil, fmt.Errorf("ocr engine: %w", err)
		}
		return nil, fmt.Errorf("ocr engine: %w: %s", err, truncate(msg, 512))
	}

	out = bytes.TrimSpace(out)
	if !json.Valid(out) {
		return nil, fmt.Errorf("ocr engine returned non-JSON output (%d bytes)", len(out))
	}
	return json.RawMessage(out), nil
}

// OCRProcessor reads the input as an image and passes it to the engine.
type OCRProcessor struct {
	engine OCREngine
	logger *slog.Logger
}

// NewOCRProcessor creates a new OCR processor
func NewOCRProcessor(engine OCREngine, logger *slog.Logger) *OCRProcessor {
	return &OCRProcessor{engine: engine, logger: logger}
}

// Process returns {"ocr": <engine output>}.
func (p *OCRProcessor) Process(ctx context.Context, inputRef string) (json.RawMessage, error) {
	if err := checkImage(inputRef); err != nil {
		return nil, err
	}

	raw, err := p.engine.Recognize(ctx, inputRef)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("OCR finished",
		slog.String("input", inputRef),
		slog.Int("result_bytes", len(raw)),
	)

	result, err := json.Marshal(struct {
		OCR json.RawMessage `json:"ocr"`
	}{OCR: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ocr result: %w", err)
	}
	return result, nil
}

// checkImage fails unless path holds a decodable image (PNG, JPEG, GIF, BMP,
// TIFF or WebP).
func checkImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	return nil
}
