// Package api implements the client side of the cnnbench HTTP API. The
// methods of [Client] correspond to the routes served by package server.
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

	"github.com/cnnbench/cnnbench/convnet"
	"github.com/cnnbench/cnnbench/envconfig"
	"github.com/cnnbench/cnnbench/version"
)

// Client encapsulates client state for interacting with a cnnbench
// server. Use [ClientFromEnvironment] to create new Clients.
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

// ClientFromEnvironment creates a new [Client] for the server at
// CNNBENCH_HOST.
func ClientFromEnvironment() (*Client, error) {
	base, err := url.Parse("http://" + envconfig.Host())
	if err != nil {
		return nil, err
	}
	return NewClient(base, http.DefaultClient), nil
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
	request.Header.Set("User-Agent", fmt.Sprintf("cnnbench/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

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

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, nil, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// List lists the models registered with the server.
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	var lr ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, nil, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

// Show returns the analytic summary of a model.
func (c *Client) Show(ctx context.Context, req *ShowRequest) (*ShowResponse, error) {
	query := url.Values{}
	if req.BatchSize > 0 {
		query.Set("batch_size", strconv.Itoa(req.BatchSize))
	}
	if req.DataFormat != "" {
		query.Set("data_format", req.DataFormat)
	}
	if req.Verbose {
		query.Set("verbose", "true")
	}

	var resp ShowResponse
	if err := c.do(ctx, http.MethodGet, "/api/models/"+url.PathEscape(req.Name), query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Definition returns the layer definition of a model at its default batch
// size.
func (c *Client) Definition(ctx context.Context, name string) (*convnet.Definition, error) {
	var def convnet.Definition
	if err := c.do(ctx, http.MethodGet, "/api/models/"+url.PathEscape(name)+"/definition", nil, nil, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// Bench runs a benchmark on the server and returns its report.
func (c *Client) Bench(ctx context.Context, req *BenchRequest) (*BenchResponse, error) {
	var resp BenchResponse
	if err := c.do(ctx, http.MethodPost, "/api/bench", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Runs lists recorded benchmark runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) (*RunsResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp RunsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Run returns a recorded run with all of its results.
func (c *Client) Run(ctx context.Context, id string) (*RunResponse, error) {
	var resp RunResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
