// Package extraction talks to the external document extraction service.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// Entity is one typed fact found in a document.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// CandidateEvent is the best-effort structured event. Every field except DocType may be empty.
type CandidateEvent struct {
	Name       string `json:"name,omitempty"`
	Date       string `json:"date,omitempty"`
	Category   string `json:"category,omitempty"`
	Department string `json:"department,omitempty"`
	Venue      string `json:"venue,omitempty"`
	Organizer  string `json:"organizer,omitempty"`
	Abstract   string `json:"abstract,omitempty"`
	DocType    string `json:"doc_type"`
}

// Result is the payload returned by POST /extract.
type Result struct {
	RawText        string         `json:"raw_text"`
	Entities       []Entity       `json:"entities"`
	CandidateEvent CandidateEvent `json:"candidate_event"`
}

// Request identifies the file to extract.
type Request struct {
	DocumentID  string
	Filename    string
	ContentType string
	Body        io.Reader
}

// StatusError reports a non-2xx reply from the extraction service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("extraction service returned %d: %s", e.StatusCode, e.Body)
}

// Client is an HTTP client for the extraction service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client. A zero timeout falls back to two minutes.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// Extract uploads the file as multipart form data and decodes the result.
func (c *Client) Extract(ctx context.Context, req Request) (*Result, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(form, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("call extraction service: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode extraction result: %w", err)
	}
	return &result, nil
}

func writeForm(form *multipart.Writer, req Request) error {
	if err := form.WriteField("document_id", req.DocumentID); err != nil {
		return err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.Filename))
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Body); err != nil {
		return err
	}
	return form.Close()
}
