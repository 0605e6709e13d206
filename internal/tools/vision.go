package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/rushi32/IsoCode/internal/llm"
)

// maxImageEdge is the long-edge limit before downscaling; larger images
// waste vision-model context without adding detail.
const maxImageEdge = 1568

// VisionCaller is the slice of the LLM adapter this tool needs; both
// *llm.Client and *llm.Handle satisfy it.
type VisionCaller interface {
	CallVision(ctx context.Context, model, prompt, imageBase64, mimeType string, opts llm.Options) (string, error)
}

// AnalyzeImageTool loads an image (or the latest screenshot) and, when a
// vision model is configured, asks it to describe the image.
type AnalyzeImageTool struct {
	LLM         VisionCaller
	VisionModel func() string
	Browser     *Browser
}

func (t *AnalyzeImageTool) Name() string { return "analyze_image" }
func (t *AnalyzeImageTool) Description() string {
	return "Analyze an image file with the vision model. Without a path, uses the most recent browser screenshot."
}
func (t *AnalyzeImageTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"path":   stringProp("Path to the image (omit to use the latest screenshot)"),
		"prompt": stringProp("What to look for (default: a general description)"),
	})
}

func (t *AnalyzeImageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" && t.Browser != nil {
		path = t.Browser.LastScreenshot()
	}
	if path == "" {
		return ErrorResult("path is required (no screenshot has been taken yet)")
	}
	resolved, err := resolvePath(path, WorkspaceFromCtx(ctx))
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}

	imageB64, mimeType, width, height, err := loadImageBase64(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to load image %s: %v", path, err))
	}

	prompt, _ := args["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		prompt = "Describe this image in detail, including any visible text."
	}

	model := ""
	if t.VisionModel != nil {
		model = t.VisionModel()
	}
	if model == "" || t.LLM == nil {
		return PayloadResult(map[string]interface{}{
			"path":    path,
			"width":   width,
			"height":  height,
			"content": "image loaded but no vision model is configured; set visionModel in the configuration to analyze images",
		})
	}

	answer, err := t.LLM.CallVision(ctx, model, prompt, imageB64, mimeType, llm.Options{
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("vision call failed: %v", err))
	}
	return PayloadResult(map[string]interface{}{
		"path":    path,
		"width":   width,
		"height":  height,
		"model":   model,
		"content": answer,
	})
}

// loadImageBase64 reads an image, downscaling when the long edge exceeds
// maxImageEdge. Downscaled images are re-encoded as PNG; originals keep
// their bytes and extension-derived mime type.
func loadImageBase64(path string) (b64, mimeType string, width, height int, err error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", "", 0, 0, err
	}
	bounds := img.Bounds()
	width, height = bounds.Dx(), bounds.Dy()

	long := width
	if height > long {
		long = height
	}
	if long > maxImageEdge {
		resized := imaging.Fit(img, maxImageEdge, maxImageEdge, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
			return "", "", 0, 0, fmt.Errorf("re-encode: %w", err)
		}
		rb := resized.Bounds()
		return base64.StdEncoding.EncodeToString(buf.Bytes()), "image/png", rb.Dx(), rb.Dy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", 0, 0, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		mimeType = "image/jpeg"
	case ".gif":
		mimeType = "image/gif"
	case ".webp":
		mimeType = "image/webp"
	default:
		mimeType = "image/png"
	}
	return base64.StdEncoding.EncodeToString(data), mimeType, width, height, nil
}
