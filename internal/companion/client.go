package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/apperr"
)

// Client talks to a companion service over HTTP JSON.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client rooted at baseURL. A nil hc uses http.DefaultClient.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// AddNote posts a new note and returns the identifier the service assigned.
func (c *Client) AddNote(ctx context.Context, req AddNoteRequest) (uuid.UUID, error) {
	var resp Response
	if err := c.do(ctx, http.MethodPost, "/add_note", req, &resp); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(resp.NoteID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("companion: add_note: %w: note_id %q", apperr.ErrMalformedRecord, resp.NoteID)
	}
	return id, nil
}

// EditNote patches an existing note.
func (c *Client) EditNote(ctx context.Context, req EditNoteRequest) error {
	return c.do(ctx, http.MethodPatch, "/edit_note", req, nil)
}

// RemoveNote deletes a note by id.
func (c *Client) RemoveNote(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/remove_note", RemoveNoteRequest{NoteID: id.String()}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("companion: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("companion: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("companion: %s %s: %w: %w", method, path, apperr.ErrTimeout, err)
		}
		return fmt.Errorf("companion: %s %s: %w: %w", method, path, apperr.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("companion: %s %s: %w: status %d: %s",
			method, path, apperr.ErrTransport, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("companion: %s %s: %w: %w", method, path, apperr.ErrMalformedRecord, err)
	}
	return nil
}
