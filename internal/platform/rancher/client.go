// Package rancher is a small client for the Rancher v3 management API.
package rancher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
)

// ErrClusterNotFound is returned when Rancher knows no cluster by the given name.
var ErrClusterNotFound = errors.New("rancher cluster not found")

// Client is a minimal Rancher v3 API client covering cluster lookup,
// kubeconfig generation and registration tokens.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

type collection struct {
	Data []json.RawMessage `json:"data"`
}

type clusterResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type kubeconfigResponse struct {
	Config string `json:"config"`
}

type registrationToken struct {
	NodeCommand string `json:"nodeCommand"`
}

// NewClient creates a Rancher API client for hostname. TLS verification of
// the Rancher endpoint is skipped unless tlsVerify is set.
func NewClient(hostname, apiToken string, tlsVerify bool) *Client {
	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: !tlsVerify, //nolint:gosec // Rancher installs commonly use self-signed certificates.
	}

	return &Client{
		baseURL:    "https://" + strings.TrimSuffix(hostname, "/"),
		apiToken:   apiToken,
		httpClient: &http.Client{Transport: transport},
	}
}

// ClusterID returns the ID of the cluster with the given name.
func (c *Client) ClusterID(ctx context.Context, name string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v3/clusters?name="+url.QueryEscape(name))
	if err != nil {
		return "", err
	}

	var resp collection
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("get cluster %s: %w", name, err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("%w: %s", ErrClusterNotFound, name)
	}

	var cluster clusterResource
	if err := json.Unmarshal(resp.Data[0], &cluster); err != nil {
		return "", fmt.Errorf("parse cluster %s: %w", name, err)
	}
	if cluster.ID == "" {
		return "", fmt.Errorf("cluster %s has no id", name)
	}
	return cluster.ID, nil
}

// Kubeconfig generates a kubeconfig for the named cluster. An empty result
// means Rancher returned no config.
func (c *Client) Kubeconfig(ctx context.Context, name string) ([]byte, error) {
	id, err := c.ClusterID(ctx, name)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v3/clusters/"+url.PathEscape(id)+"?action=generateKubeconfig")
	if err != nil {
		return nil, err
	}

	var resp kubeconfigResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("generate kubeconfig for %s: %w", name, err)
	}
	return []byte(resp.Config), nil
}

// NodeCommand returns the node registration command of the named cluster's
// first registration token.
func (c *Client) NodeCommand(ctx context.Context, name string) (string, error) {
	id, err := c.ClusterID(ctx, name)
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/v3/clusters/"+url.PathEscape(id)+"/clusterregistrationtokens")
	if err != nil {
		return "", err
	}

	var resp collection
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("get registration tokens for %s: %w", name, err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("cluster %s has no registration tokens", name)
	}

	var token registrationToken
	if err := json.Unmarshal(resp.Data[0], &token); err != nil {
		return "", fmt.Errorf("parse registration token: %w", err)
	}
	return token.NodeCommand, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w (status %d)", err, resp.StatusCode)
	}

	return nil
}
