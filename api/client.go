// Package api implements the client-side API for code wishing to interact
// with the speedster service. The methods of the [Client] type correspond to
// the routes registered by the server package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"

	"github.com/speedster/speedster/envconfig"
	"github.com/speedster/speedster/feedback"
	"github.com/speedster/speedster/version"
)

// Client encapsulates client state for interacting with the speedster
// service. Use [ClientFromEnvironment] to create new Clients.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	err := json.Unmarshal(body, &apiError)
	if err != nil {
		// Use the full body as the message if we fail to decode a response.
		apiError.ErrorMessage = string(body)
	}

	return apiError
}

// ClientFromEnvironment creates a new [Client] using SPEEDSTER_HOST:
//
//	<scheme>://<host>:<port>
//
// If the variable is not specified, 127.0.0.1:8642 is used.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqData, respData any) error {
	var reqBody io.Reader
	if reqData != nil {
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)
	if len(query) > 0 {
		requestURL.RawQuery = query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("speedster/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}

	if err := checkError(respObj, respBody); err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}
	return nil
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil, nil)
}

// Version returns the speedster server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}

// Optimize runs an optimization on the server and blocks until it finishes.
func (c *Client) Optimize(ctx context.Context, req *OptimizeRequest) (*OptimizeResponse, error) {
	var resp OptimizeResponse
	if err := c.do(ctx, http.MethodPost, "/api/optimize", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRuns lists stored runs, newest first. limit <= 0 lists all.
func (c *Client) ListRuns(ctx context.Context, limit int) (*ListRunsResponse, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}

	var resp ListRunsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Run returns a stored run with all its attempts.
func (c *Client) Run(ctx context.Context, id string) (*feedback.Run, error) {
	var resp feedback.Run
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
