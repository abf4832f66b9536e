package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	_ "image/png" // provider output may be png; decoded then re-encoded as jpeg

	"portraits/internal/domain"
	"portraits/internal/infra"
	"portraits/internal/providers/stylize"
)

// Defaults for artifact processing.
const (
	DefaultTargetBytes   = 2 * 1024 * 1024
	DefaultPreviewMaxDim = 1024
)

// Artifacts are the two durable outputs of a completed job: the private
// full-resolution file and the public watermarked preview.
type Artifacts struct {
	HDKey      string
	HDURL      string
	PreviewKey string
	PreviewURL string
}

// Options configures a Pipeline.
type Options struct {
	Allowlist     stylize.HostAllowlist
	Store         domain.ObjectStore
	HTTPClient    *http.Client
	Logger        infra.Logger
	TargetBytes   int
	PreviewMaxDim int
}

// Pipeline turns a provider result URL into stored HD and preview artifacts.
type Pipeline struct {
	allowlist     stylize.HostAllowlist
	store         domain.ObjectStore
	httpClient    *http.Client
	logger        infra.Logger
	targetBytes   int
	previewMaxDim int

	// watermark is swappable so tests can exercise the fallback path.
	watermark func(image.Image) (image.Image, error)
}

// New constructs a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New("pipeline: object store is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	targetBytes := opts.TargetBytes
	if targetBytes <= 0 {
		targetBytes = DefaultTargetBytes
	}
	previewMaxDim := opts.PreviewMaxDim
	if previewMaxDim <= 0 {
		previewMaxDim = DefaultPreviewMaxDim
	}
	return &Pipeline{
		allowlist:     opts.Allowlist,
		store:         opts.Store,
		httpClient:    httpClient,
		logger:        opts.Logger,
		targetBytes:   targetBytes,
		previewMaxDim: previewMaxDim,
		watermark:     applyTiledWatermark,
	}, nil
}

// Process downloads the provider output, compresses it into the HD artifact
// and derives the watermarked preview, persisting both under deterministic
// job-scoped keys so reprocessing overwrites instead of orphaning.
func (p *Pipeline) Process(ctx context.Context, jobID, sourceURL string) (*Artifacts, error) {
	if err := p.allowlist.Check(sourceURL); err != nil {
		return nil, err
	}
	raw, err := p.download(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("pipeline: decode source image: %w", err)
	}

	hdBytes, err := compressToTarget(src, p.targetBytes, hdQualityLadder)
	if err != nil {
		return nil, fmt.Errorf("pipeline: compress hd artifact: %w", err)
	}
	hdKey := fmt.Sprintf("outputs/hd-%s.jpg", jobID)
	hdURL, err := p.store.Put(ctx, hdKey, hdBytes, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("pipeline: store hd artifact: %w", err)
	}

	// The preview is always derived from the resized image, never from the
	// full-resolution bytes; watermark failure degrades to an unwatermarked
	// but still resized preview.
	resized := resizeToMax(src, p.previewMaxDim)
	previewImg, err := p.watermark(resized)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("pipeline: watermark failed, using unwatermarked preview")
		previewImg = resized
	}
	previewBytes, err := compressToTarget(previewImg, p.targetBytes, previewQualityLadder)
	if err != nil {
		return nil, fmt.Errorf("pipeline: compress preview artifact: %w", err)
	}
	previewKey := fmt.Sprintf("outputs/preview-%s.jpg", jobID)
	previewURL, err := p.store.Put(ctx, previewKey, previewBytes, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("pipeline: store preview artifact: %w", err)
	}

	p.logger.Info().
		Str("job_id", jobID).
		Int("hd_bytes", len(hdBytes)).
		Int("preview_bytes", len(previewBytes)).
		Msg("pipeline: artifacts stored")
	return &Artifacts{HDKey: hdKey, HDURL: hdURL, PreviewKey: previewKey, PreviewURL: previewURL}, nil
}

func (p *Pipeline) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build download request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pipeline: download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pipeline: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read source: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("pipeline: empty source image")
	}
	return data, nil
}
