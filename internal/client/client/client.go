// Package client talks to the relay HTTP API on behalf of exius-cli.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const authorizationHeader = "Authorization"

// IssuedKey mirrors the createSubjectKey response.
type IssuedKey struct {
	SubjectKey  string `json:"subjectKey"`
	RelayNumber int64  `json:"relayNumber"`
	UploadToken string `json:"uploadToken"`
}

// UploadResult mirrors the upload response.
type UploadResult struct {
	Accepted    []string          `json:"accepted"`
	FailedFiles map[string]string `json:"failedFiles"`
}

// UploadFile is a local file sent to one endpoint of a relay.
type UploadFile struct {
	Endpoint string
	Path     string
}

// UploadAuth identifies the uploader either by relay and subject key or by
// an upload token. A non-empty Token wins.
type UploadAuth struct {
	RelayName  string
	SubjectKey string
	Token      string
}

func (a UploadAuth) header() string {
	if a.Token != "" {
		return "Bearer " + a.Token
	}
	return Authorization("relayName", a.RelayName, "subjectKey", a.SubjectKey)
}

// Authorization joins name/value pairs into the "name:value;name:value"
// header form the server expects.
func Authorization(kv ...string) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, kv[i]+":"+kv[i+1])
	}
	return strings.Join(parts, ";")
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// IssueKey asks the relay for a new subject key. The password may be empty
// for relays created without one.
func (c *Client) IssueKey(ctx context.Context, relayName, password, metaData string) (*IssuedKey, error) {
	var out IssuedKey
	err := c.postJSON(ctx, "/subjectKey/createSubjectKey",
		Authorization("relayName", relayName, "password", password),
		map[string]string{"metaData": metaData}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRelay returns the relay document as sent by the server.
func (c *Client) GetRelay(ctx context.Context, relayName, githubKey string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.postJSON(ctx, "/relay/getRelay",
		Authorization("relayName", relayName, "githubKey", githubKey), nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Upload streams files as one multipart request. Each file is sent under
// its endpoint name as the form field.
func (c *Client) Upload(ctx context.Context, auth UploadAuth, files []UploadFile) (*UploadResult, error) {
	for _, f := range files {
		if _, err := os.Stat(f.Path); err != nil {
			return nil, err
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan error, 1)
	go func() {
		err := writeParts(mw, files)
		written <- err
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		pr.CloseWithError(err)
		<-written
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(authorizationHeader, auth.header())

	var out UploadResult
	if err := c.do(req, &out); err != nil {
		if werr := <-written; werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
			return nil, werr
		}
		return nil, err
	}
	return &out, nil
}

func writeParts(mw *multipart.Writer, files []UploadFile) error {
	for _, f := range files {
		if err := writePart(mw, f); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writePart(mw *multipart.Writer, f UploadFile) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := mw.CreateFormFile(f.Endpoint, filepath.Base(f.Path))
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

func (c *Client) postJSON(ctx context.Context, path, authorization string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(authorizationHeader, authorization)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// responseError turns a non-200 response into an error carrying the
// server's message.
func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
}
