package scraper

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"github.com/newsweaver/newsweaver/internal/models"
)

// changeSignature fingerprints a local file cheaply. Size plus mtime is
// enough to notice edits without hashing content.
func changeSignature(info os.FileInfo) string {
	return fmt.Sprintf("size=%d_mtime=%d", info.Size(), info.ModTime().Unix())
}

// sweepLocal ingests the immediate regular files of a local source
// directory. Subdirectories are not descended into. Files with an active row
// are skipped outright; when skip_unchanged is set, files whose signature
// matches the most recent row are also skipped.
func (s *Scraper) sweepLocal(ctx context.Context, logger *slog.Logger, src *models.Source) ([]models.ScrapedFile, error) {
	dir := src.LocalDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir %s: %w", dir, err)
	}

	var captured []models.ScrapedFile
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logger.Warn("stat failed, skipping file", "filename", entry.Name(), "error", err)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		filename := entry.Name()
		signature := changeSignature(info)

		active, err := s.files.HasActive(ctx, src.ID, filename)
		if err != nil {
			return nil, err
		}
		if active {
			logger.Debug("skipping local file, active row exists", "filename", filename)
			continue
		}

		if s.cfg.SkipUnchanged {
			last, err := s.files.LatestSignature(ctx, src.ID, filename)
			if err != nil {
				return nil, err
			}
			if last == signature {
				logger.Debug("skipping unchanged local file", "filename", filename, "signature", signature)
				continue
			}
		}

		srcPath := filepath.Join(dir, filename)
		f, err := os.Open(srcPath)
		if err != nil {
			logger.Warn("open failed, skipping file", "path", srcPath, "error", err)
			continue
		}
		mimetype := localMimetype(f, filename)
		path, err := s.blobs.Save(src.ID, filename, f)
		f.Close()
		if err != nil {
			logger.Warn("blob save failed, skipping file", "filename", filename, "error", err)
			continue
		}

		logger.Info("captured local file", "filename", filename, "signature", signature)
		captured = append(captured, models.ScrapedFile{
			SourceID:  src.ID,
			LocalPath: path,
			Filename:  filename,
			Mimetype:  mimetype,
			ScrapedAt: time.Now().UTC(),
			Status:    models.StatusPending,
			Notes:     signature,
		})
	}
	return captured, nil
}

// localMimetype maps the extension first and falls back to content
// sniffing. The reader is rewound afterward so the blob copy starts at 0.
func localMimetype(f *os.File, filename string) string {
	if mt, _, err := mime.ParseMediaType(mime.TypeByExtension(filepath.Ext(filename))); err == nil {
		return mt
	}

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "application/octet-stream"
	}
	if n == 0 {
		return "application/octet-stream"
	}
	if mt, _, err := mime.ParseMediaType(http.DetectContentType(buf[:n])); err == nil {
		return mt
	}
	return "application/octet-stream"
}
