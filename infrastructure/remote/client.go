// Package remote implements the connector gateway over HTTP. The
// connector fronts the catalog backend and exposes the hierarchy,
// validate and commit endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"catalog-staging/domain/hierarchy"
	"catalog-staging/domain/staging"
	"catalog-staging/pkg/errors"
)

// DefaultTimeout bounds connector requests
const DefaultTimeout = 30 * time.Second

// Client talks to the connector service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientConfig configures a connector client
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient creates a connector client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.NewValidationError("connector base URL cannot be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// hierarchyNode is the connector's nested tree representation
type hierarchyNode struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Name     string                 `json:"name"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	Children []hierarchyNode        `json:"children,omitempty"`
}

type hierarchyResponse struct {
	Success   bool            `json:"success"`
	Hierarchy []hierarchyNode `json:"hierarchy"`
}

// FetchHierarchy loads the product hierarchy from the connector
func (c *Client) FetchHierarchy(ctx context.Context) (*hierarchy.Tree, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/product-hierarchy", nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to build hierarchy request").WithCause(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError("hierarchy request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExternalError("connector",
			fmt.Errorf("hierarchy request returned status %d", resp.StatusCode))
	}

	var payload hierarchyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.NewExternalError("connector", err)
	}
	if !payload.Success {
		return nil, errors.NewExternalError("connector",
			fmt.Errorf("hierarchy response not successful"))
	}

	tree := hierarchy.NewTree()
	for _, root := range payload.Hierarchy {
		if err := addSubtree(tree, root, ""); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("fetched hierarchy", zap.Int("nodes", tree.Len()))
	return tree, nil
}

func addSubtree(tree *hierarchy.Tree, n hierarchyNode, parentID string) error {
	node, err := hierarchy.NewNode(n.ID, n.Type, n.Name)
	if err != nil {
		return errors.Wrapf(err, "invalid hierarchy node %s", n.ID)
	}
	for k, v := range n.Fields {
		node.SetField(k, v)
	}
	if err := tree.AddNode(node, parentID); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := addSubtree(tree, child, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// ValidateChanges runs a dry-run validation of the payload
func (c *Client) ValidateChanges(ctx context.Context, payload staging.CommitPayload) (*staging.ValidationResult, error) {
	var result staging.ValidationResult
	if err := c.post(ctx, "/changes/validate", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CommitChanges submits the payload for execution
func (c *Client) CommitChanges(ctx context.Context, payload staging.CommitPayload) (*staging.CommitResult, error) {
	var result staging.CommitResult
	if err := c.post(ctx, "/changes/commit", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.NewInternalError("failed to encode payload").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.NewInternalError("failed to build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewNetworkError("connector request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("connector request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return errors.NewExternalError("connector",
			fmt.Errorf("request to %s failed with status %d", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewExternalError("connector", err)
	}
	return nil
}
