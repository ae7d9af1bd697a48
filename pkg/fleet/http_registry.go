package fleet

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPRegistry checks image existence against a registry speaking the
// standard v2 API (HEAD on the manifest by digest).
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRegistry(baseURL string) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *HTTPRegistry) Exists(ctx context.Context, image string) (bool, error) {
	name, digest, found := strings.Cut(image, "@")
	if !found {
		return false, nil
	}

	url := fmt.Sprintf("%s/v2/%s/manifests/%s", r.baseURL, name, digest)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/vnd.oci.image.manifest.v1+json, application/vnd.docker.distribution.manifest.v2+json")

	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("registry returned status %d for %s", resp.StatusCode, image)
	}
}
