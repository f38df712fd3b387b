package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/chunkvault/internal/server/models"
)

const defaultBackoff = 500 * time.Millisecond

// Meta is the file metadata sent with the session and every chunk.
type Meta struct {
	FileName     string
	FileType     string
	TargetFolder string
	GymSlug      string
	GymName      string
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the chunkvault HTTP API. Network errors and 5xx answers
// are retried with exponential backoff.
type Client struct {
	baseURL string
	http    *http.Client
	retries uint64
	backoff time.Duration
}

func NewClient(baseURL string, timeout time.Duration, retries uint64) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retries: retries,
		backoff: defaultBackoff,
	}
}

type createSessionRequest struct {
	SessionID      string `json:"session_id,omitempty"`
	FileName       string `json:"file_name"`
	FileType       string `json:"file_type"`
	TotalChunks    int    `json:"total_chunks"`
	TargetFolderID string `json:"target_folder_id,omitempty"`
	GymSlug        string `json:"gym_slug,omitempty"`
	GymName        string `json:"gym_name,omitempty"`
}

func (c *Client) CreateSession(ctx context.Context, meta Meta, totalChunks int) (*models.SessionStatus, error) {
	body, err := json.Marshal(createSessionRequest{
		FileName:       meta.FileName,
		FileType:       meta.FileType,
		TotalChunks:    totalChunks,
		TargetFolderID: meta.TargetFolder,
		GymSlug:        meta.GymSlug,
		GymName:        meta.GymName,
	})
	if err != nil {
		return nil, err
	}

	var out models.SessionStatus
	h := http.Header{"Content-Type": {"application/json"}}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", h, body, &out); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &out, nil
}

func (c *Client) PutChunk(ctx context.Context, sessionID string, index, total int, data []byte, meta Meta) (*models.SessionStatus, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/octet-stream")
	h.Set("X-Total-Chunks", strconv.Itoa(total))
	h.Set("X-File-Name", meta.FileName)
	h.Set("X-File-Type", meta.FileType)
	if meta.TargetFolder != "" {
		h.Set("X-Target-Folder", meta.TargetFolder)
	}
	if meta.GymSlug != "" {
		h.Set("X-Gym-Slug", meta.GymSlug)
	}
	if meta.GymName != "" {
		h.Set("X-Gym-Name", meta.GymName)
	}

	var out models.SessionStatus
	path := fmt.Sprintf("/api/v1/sessions/%s/chunks/%d", url.PathEscape(sessionID), index)
	if err := c.do(ctx, http.MethodPut, path, h, data, &out); err != nil {
		return nil, fmt.Errorf("chunk %d: %w", index, err)
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	var out models.SessionStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("session status: %w", err)
	}
	return &out, nil
}

func (c *Client) Reconstruct(ctx context.Context, sessionID string) (*models.FileHandle, error) {
	var out models.FileHandle
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/reconstruct"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("reconstruct: %w", err)
	}
	return &out, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil, nil); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (c *Client) policy() retry.Backoff {
	return retry.WithMaxRetries(c.retries, retry.WithJitterPercent(10, retry.NewExponential(c.backoff)))
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body []byte, out any) error {
	return retry.Do(ctx, c.policy(), func(ctx context.Context) error {
		err := c.once(ctx, method, path, header, body, out)

		var apiErr *APIError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &apiErr) && !apiErr.Temporary():
			return err
		case errors.Is(err, context.Canceled):
			return err
		default:
			return retry.RetryableError(err)
		}
	})
}

func (c *Client) once(ctx context.Context, method, path string, header http.Header, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: resp.Status}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
