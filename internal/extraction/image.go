package extraction

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// objectDetectionPlaceholder is emitted until a detection model is wired in.
// Downstream consumers key off this sentinel to know the field is a stub.
const objectDetectionPlaceholder = "object_detection_model_not_loaded"

// ImageStrategy runs OCR over an image and collects EXIF plus dimension
// metadata. OCR shells out to the tesseract CLI; a missing binary is an
// extraction failure because retrying cannot fix it.
type ImageStrategy struct {
	// OCRBinary is the command invoked as `<binary> <path> stdout`.
	OCRBinary string
}

func NewImageStrategy() *ImageStrategy {
	return &ImageStrategy{OCRBinary: "tesseract"}
}

func (s *ImageStrategy) Name() string { return "image" }

func (s *ImageStrategy) Extract(path, mimetype string) (*Result, error) {
	bin, err := exec.LookPath(s.OCRBinary)
	if err != nil {
		return nil, extractionErr(s.Name(), path, fmt.Errorf("ocr binary %q not found: %w", s.OCRBinary, err))
	}

	out, err := exec.Command(bin, path, "stdout").Output()
	if err != nil {
		return nil, extractionErr(s.Name(), path, fmt.Errorf("ocr run: %w", err))
	}

	return &Result{
		Text:     strings.TrimSpace(string(out)),
		Objects:  []string{objectDetectionPlaceholder},
		Metadata: imageMetadata(path),
	}, nil
}

// imageMetadata is best-effort: images without EXIF blocks (screenshots,
// PNGs) still produce dimensions, and a fully unreadable file yields an
// empty map rather than an error.
func imageMetadata(path string) map[string]string {
	meta := map[string]string{}

	if f, err := os.Open(path); err == nil {
		if cfg, _, err := image.DecodeConfig(f); err == nil {
			meta["width"] = fmt.Sprintf("%d", cfg.Width)
			meta["height"] = fmt.Sprintf("%d", cfg.Height)
		}
		f.Close()
	}

	f, err := os.Open(path)
	if err != nil {
		return meta
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return meta
	}
	for key, field := range map[string]exif.FieldName{
		"camera_make":  exif.Make,
		"camera_model": exif.Model,
		"taken_at":     exif.DateTimeOriginal,
	} {
		if tag, err := x.Get(field); err == nil {
			if v, err := tag.StringVal(); err == nil {
				meta[key] = v
			}
		}
	}
	return meta
}
