package photos

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/alfredjeanlab/venuesync/internal/metrics"
)

// maxPhotoBytes caps a single photo download.
const maxPhotoBytes = 10 << 20

// download fetches u and sniffs its type. Non-image bodies are rejected.
func (pc *Cache) download(ctx context.Context, u string) (data []byte, ext, contentType string, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ExternalRequests.WithLabelValues("photo_download", outcome).Inc()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", "", err
	}
	resp, err := pc.client.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("download %s: HTTP %d", u, resp.StatusCode)
	}
	data, err = io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("download %s: %w", u, err)
	}
	if len(data) > maxPhotoBytes {
		return nil, "", "", fmt.Errorf("download %s: larger than %d bytes", u, maxPhotoBytes)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, "", "", fmt.Errorf("download %s: not an image (%s)", u, mt.String())
	}
	return data, mt.Extension(), mt.String(), nil
}
