package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quayside/flotilla/pkg/structs"
)

// HTTPProvider drives nodes through a remote provisioner service: node
// processes are booted and killed by POSTs to the provisioner, and draining
// nodes are notified directly at their registered URL.
type HTTPProvider struct {
	provisionerURL string
	client         *http.Client
}

func NewHTTPProvider(provisionerURL string) *HTTPProvider {
	return &HTTPProvider{
		provisionerURL: strings.TrimRight(provisionerURL, "/"),
		client:         &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *HTTPProvider) Start(ctx context.Context, node *structs.Node) error {
	return p.post(ctx, fmt.Sprintf("%s/v1/nodes", p.provisionerURL), map[string]interface{}{
		"id":         node.ID,
		"routing_id": node.RoutingID,
		"image":      node.Image,
	})
}

func (p *HTTPProvider) Terminate(ctx context.Context, node *structs.Node) error {
	return p.post(ctx, fmt.Sprintf("%s/v1/nodes/%d/terminate", p.provisionerURL, node.ID), nil)
}

func (p *HTTPProvider) NotifyWhenIdle(ctx context.Context, node *structs.Node) error {
	if node.URL == "" {
		return fmt.Errorf("node %d has no url to notify", node.ID)
	}
	return p.post(ctx, fmt.Sprintf("%s/notifyWhenIdle", strings.TrimRight(node.URL, "/")), map[string]interface{}{
		"node_id": node.ID,
	})
}

func (p *HTTPProvider) post(ctx context.Context, url string, body interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		err := json.NewEncoder(&buf).Encode(body)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return nil
}
