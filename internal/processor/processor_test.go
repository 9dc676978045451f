package processor

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)

	path := filepath.Join(t.TempDir(), "doc.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

type fakeEngine struct {
	out  json.RawMessage
	err  error
	seen string
}

func (e *fakeEngine) Recognize(_ context.Context, path string) (json.RawMessage, error) {
	e.seen = path
	return e.out, e.err
}

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	name   string
	args   []string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	return r.stdout, r.stderr, r.err
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Covers())

	_, err := r.Lookup(domain.JobTypeOCR)
	require.Error(t, err)

	r.Register(domain.JobTypeOCR, IdentityProcessor{}).
		Register(domain.JobTypeIdentityVerify, IdentityProcessor{})
	require.NoError(t, r.Covers())

	p, err := r.Lookup(domain.JobTypeIdentityVerify)
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = r.Lookup(domain.JobType("bogus"))
	assert.Error(t, err)
}

func TestOCRProcessor_WrapsEngineOutputUnchanged(t *testing.T) {
	path := writePNG(t)
	engine := &fakeEngine{out: json.RawMessage(`[["text", 0.98]]`)}
	p := NewOCRProcessor(engine, discardLogger())

	result, err := p.Process(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, engine.seen)
	assert.JSONEq(t, `{"ocr": [["text", 0.98]]}`, string(result))
}

// minimalWebP is a RIFF container holding a 1x1 lossless (VP8L) header.
var minimalWebP = []byte{
	'R', 'I', 'F', 'F', 18, 0, 0, 0, 'W', 'E', 'B', 'P',
	'V', 'P', '8', 'L', 5, 0, 0, 0,
	0x2f, 0, 0, 0, 0, 0,
}

func TestOCRProcessor_AcceptedImageFormats(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.Black)

	tests := []struct {
		name   string
		file   string
		encode func(w io.Writer) error
	}{
		{name: "png", file: "scan.png", encode: func(w io.Writer) error { return png.Encode(w, img) }},
		{name: "jpeg", file: "scan.jpg", encode: func(w io.Writer) error { return jpeg.Encode(w, img, nil) }},
		{name: "gif", file: "scan.gif", encode: func(w io.Writer) error { return gif.Encode(w, img, nil) }},
		{name: "bmp", file: "scan.bmp", encode: func(w io.Writer) error { return bmp.Encode(w, img) }},
		{name: "tiff", file: "scan.tiff", encode: func(w io.Writer) error { return tiff.Encode(w, img, nil) }},
		{name: "webp", file: "scan.webp", encode: func(w io.Writer) error {
			_, err := w.Write(minimalWebP)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			f, err := os.Create(path)
			require.NoError(t, err)
			require.NoError(t, tt.encode(f))
			require.NoError(t, f.Close())

			engine := &fakeEngine{out: json.RawMessage(`[]`)}
			p := NewOCRProcessor(engine, discardLogger())

			result, err := p.Process(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, path, engine.seen)
			assert.JSONEq(t, `{"ocr": []}`, string(result))
		})
	}
}

func TestOCRProcessor_UnreadableInput(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "missing file",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nope.png")
			},
		},
		{
			name: "not an image",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "doc.png")
				require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))
				return path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{out: json.RawMessage(`[]`)}
			p := NewOCRProcessor(engine, discardLogger())

			_, err := p.Process(context.Background(), tt.setup(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to read image")
			assert.Empty(t, engine.seen, "engine must not run on unreadable input")
		})
	}
}

func TestOCRProcessor_EngineError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("model crashed")}
	p := NewOCRProcessor(engine, discardLogger())

	_, err := p.Process(context.Background(), writePNG(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestCommandEngine_Args(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("  [[\"a\", 0.5]]\n")}
	e := NewCommandEngine(CommandEngineConfig{
		Command: "ocr-cli",
		Args:    []string{"{input}", "-l", "{lang}", "--gpu={gpu}"},
		Lang:    "hi",
		UseGPU:  true,
	}, runner, discardLogger())

	out, err := e.Recognize(context.Background(), "/tmp/x.png")
	require.NoError(t, err)

	assert.Equal(t, "ocr-cli", runner.name)
	assert.Equal(t, []string{"/tmp/x.png", "-l", "hi", "--gpu=true"}, runner.args)
	assert.JSONEq(t, `[["a", 0.5]]`, string(out))
}

func TestCommandEngine_Defaults(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(`[]`)}
	e := NewCommandEngine(CommandEngineConfig{}, runner, discardLogger())

	_, err := e.Recognize(context.Background(), "in.png")
	require.NoError(t, err)
	assert.Equal(t, "paddleocr-json", runner.name)
	assert.Equal(t, []string{"--image", "in.png", "--lang", "en", "--use-gpu=false", "--cls"}, runner.args)
}

func TestCommandEngine_Failures(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		wantMsg string
	}{
		{
			name:    "non-json stdout",
			runner:  &fakeRunner{stdout: []byte("hello")},
			wantMsg: "non-JSON output",
		},
		{
			name:    "command error with stderr",
			runner:  &fakeRunner{err: errors.New("exit status 1"), stderr: []byte("CUDA not found\n")},
			wantMsg: "CUDA not found",
		},
		{
			name:    "command error without stderr",
			runner:  &fakeRunner{err: errors.New("exit status 2")},
			wantMsg: "exit status 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewCommandEngine(CommandEngineConfig{Command: "x"}, tt.runner, discardLogger())
			_, err := e.Recognize(context.Background(), "in.png")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestIdentityProcessor_Placeholder(t *testing.T) {
	out, err := IdentityProcessor{}.Process(context.Background(), "anything")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, false, got["verified"])
	assert.Contains(t, got, "match_score")
	assert.Nil(t, got["match_score"])
	assert.NotEmpty(t, got["note"])
}

func TestIdentityProcessor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := IdentityProcessor{}.Process(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFunc(t *testing.T) {
	var p Processor = Func(func(_ context.Context, ref string) (json.RawMessage, error) {
		return json.RawMessage(`"` + ref + `"`), nil
	})
	out, err := p.Process(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(out))
}
