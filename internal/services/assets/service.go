package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

// Service downloads remote media into the local asset store and hands
// back the public path content should reference instead. Asset identity
// is a content address of the source URL, so the same remote file is
// fetched once no matter how many pages embed it.
type Service struct {
	store     interfaces.AssetStorage
	client    *http.Client
	config    *common.AssetsConfig
	userAgent string
	logger    arbor.ILogger
}

// NewService creates the asset sideloading service
func NewService(store interfaces.AssetStorage, config *common.AssetsConfig, userAgent string, logger arbor.ILogger) *Service {
	return &Service{
		store:     store,
		client:    &http.Client{Timeout: config.DownloadTimeout},
		config:    config,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Sideload downloads a remote asset and returns its public path.
// Repeated calls for the same source URL return the existing copy.
func (s *Service) Sideload(ctx context.Context, sourceURL, jobID string) (string, error) {
	id := models.AssetIDFor(sourceURL)
	if existing, err := s.store.GetAsset(id); err == nil {
		return s.publicPath(existing.LocalPath), nil
	}

	body, contentType, err := s.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	filename := id + extensionFor(sourceURL, contentType)
	localPath := filepath.Join(s.config.Dir, filename)
	if err := os.MkdirAll(s.config.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}
	if err := os.WriteFile(localPath, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write asset file: %w", err)
	}

	record := &models.AssetRecord{
		ID:          id,
		SourceURL:   sourceURL,
		LocalPath:   filename,
		ContentType: contentType,
		Size:        int64(len(body)),
		JobID:       jobID,
	}

	// PDFs get an integrity check before they are admitted: a corrupt
	// download should fail loudly, not surface as a broken link later
	if strings.EqualFold(path.Ext(filename), ".pdf") {
		pages, err := s.validatePDF(localPath)
		if err != nil {
			os.Remove(localPath)
			return "", fmt.Errorf("pdf validation failed for %s: %w", sourceURL, err)
		}
		record.PDFPages = pages
	}

	if err := s.store.SaveAsset(record); err != nil {
		return "", fmt.Errorf("failed to save asset record: %w", err)
	}

	s.logger.Debug().
		Str("url", sourceURL).
		Str("file", filename).
		Int64("size", record.Size).
		Msg("Sideloaded asset")

	return s.publicPath(filename), nil
}

func (s *Service) download(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build asset request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("asset download returned status %d", resp.StatusCode)
	}

	limit := s.config.MaxSize
	if limit <= 0 {
		limit = 25 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read asset body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("asset exceeds maximum size of %d bytes", limit)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func (s *Service) validatePDF(localPath string) (int, error) {
	pdfCtx, err := api.ReadContextFile(localPath)
	if err != nil {
		return 0, err
	}
	return pdfCtx.PageCount, nil
}

func (s *Service) publicPath(filename string) string {
	prefix := strings.TrimRight(s.config.PublicPrefix, "/")
	if prefix == "" {
		prefix = "/assets"
	}
	return prefix + "/" + filename
}

// extensionFor picks a file extension from the URL path, falling back
// to the response content type
func extensionFor(sourceURL, contentType string) string {
	if parsed, err := url.Parse(sourceURL); err == nil {
		if ext := path.Ext(parsed.Path); ext != "" && len(ext) <= 5 {
			return strings.ToLower(ext)
		}
	}

	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "image/svg"):
		return ".svg"
	case strings.HasPrefix(contentType, "text/css"):
		return ".css"
	case strings.HasPrefix(contentType, "application/pdf"):
		return ".pdf"
	}
	return ".bin"
}
