package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yungbote/vidlens-backend/internal/pkg/ctxutil"
	"github.com/yungbote/vidlens-backend/internal/pkg/httpx"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/platform/localmedia"
)

const thumbnailMaxRetries = 3

// ThumbnailInput names the candidate sources for one video's thumbnail.
type ThumbnailInput struct {
	VideoID      string
	VideoDir     string
	FetchedPath  string // thumbnail file the fetcher already wrote, if any
	ThumbnailURL string // metadata thumbnail URL, if any
	VideoPath    string // local media for the first-frame fallback
}

// ThumbnailService materializes <video_id>_Thumbnail.jpg in the video
// directory, trying the fetched file, then the metadata URL, then the first
// frame of the media. Callers tolerate a missing thumbnail.
type ThumbnailService interface {
	EnsureThumbnail(ctx context.Context, in ThumbnailInput) (string, error)
}

type thumbnailService struct {
	log        *logger.Logger
	tools      localmedia.Tools
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
}

func NewThumbnailService(log *logger.Logger, tools localmedia.Tools) ThumbnailService {
	return &thumbnailService{
		log:        log.With("service", "ThumbnailService"),
		tools:      tools,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: thumbnailMaxRetries,
		retryBase:  1 * time.Second,
	}
}

func (s *thumbnailService) EnsureThumbnail(ctx context.Context, in ThumbnailInput) (string, error) {
	out := filepath.Join(in.VideoDir, in.VideoID+"_Thumbnail.jpg")

	if in.FetchedPath != "" {
		if _, err := os.Stat(in.FetchedPath); err == nil {
			path, err := s.tools.ExtractThumbnailJPEG(ctx, in.FetchedPath, out)
			if err == nil {
				return path, nil
			}
			s.log.Warn("Fetched thumbnail unusable", "path", in.FetchedPath, "error", err)
		}
	}

	if in.ThumbnailURL != "" {
		tmp := out + ".download"
		if err := s.download(ctx, in.ThumbnailURL, tmp); err != nil {
			s.log.Warn("Thumbnail download failed", "url", in.ThumbnailURL, "error", err)
		} else {
			path, err := s.tools.ExtractThumbnailJPEG(ctx, tmp, out)
			_ = os.Remove(tmp)
			if err == nil {
				return path, nil
			}
			s.log.Warn("Downloaded thumbnail unusable", "url", in.ThumbnailURL, "error", err)
		}
	}

	if in.VideoPath != "" {
		path, err := s.tools.ExtractFrameAt(ctx, in.VideoPath, 0, out, localmedia.ExtractOptions{})
		if err == nil {
			return path, nil
		}
		s.log.Warn("First-frame thumbnail failed", "video", in.VideoPath, "error", err)
	}

	return "", fmt.Errorf("no usable thumbnail source for video %s", in.VideoID)
}

func (s *thumbnailService) download(ctx context.Context, rawURL, dest string) error {
	backoff := s.retryBase

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := s.downloadOnce(ctx, rawURL, dest)
		if err == nil {
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == s.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		s.log.Warn("Thumbnail download retrying",
			"url", rawURL,
			"attempt", attempt+1,
			"max_retries", s.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (s *thumbnailService) downloadOnce(ctx context.Context, rawURL, dest string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return resp, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &thumbnailHTTPError{
			StatusCode: resp.StatusCode,
			Body:       httpx.BodySnippet(resp.Body, 512),
		}
	}

	f, err := os.Create(dest)
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return resp, err
	}
	return resp, f.Close()
}

type thumbnailHTTPError struct {
	StatusCode int
	Body       string
}

func (e *thumbnailHTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("thumbnail download returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("thumbnail download returned status %d: %s", e.StatusCode, e.Body)
}

func (e *thumbnailHTTPError) HTTPStatusCode() int { return e.StatusCode }
