package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"rhema/internal/models"
	"rhema/internal/rag"
	"rhema/internal/stream"
)

const (
	chatPath  = "/api/chat"
	rhemaPath = "/api/daily-rhema"
	readSize  = 4096
)

// APIError is a non-2xx response carrying the server's error message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the query endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		// no overall timeout: answers stream for as long as the server allows
		httpClient = &http.Client{Transport: http.DefaultTransport}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Response is an open answer stream.
type Response struct {
	Stream    stream.Reader
	Matches   int
	RequestID string
}

// Query posts the question and returns the answer as a stream. The caller
// must close Response.Stream.
func (c *Client) Query(ctx context.Context, token, query string) (*Response, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, chatPath, token, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	matches, _ := strconv.Atoi(resp.Header.Get("X-Context-Matches"))
	return &Response{
		Stream:    &bodyReader{resp: resp, buf: make([]byte, readSize)},
		Matches:   matches,
		RequestID: resp.Header.Get("X-Request-ID"),
	}, nil
}

// DailyRhema fetches today's devotional for the token's user.
func (c *Client) DailyRhema(ctx context.Context, token string) (*models.DailyRhema, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	resp, err := c.post(ctx, rhemaPath, token, []byte("{}"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out models.DailyRhema
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode daily rhema: %w", err)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &APIError{Status: resp.StatusCode, Message: payload.Error}
}

// bodyReader turns a chunked text body into increments. Incomplete UTF-8
// sequences at a read boundary are held back until the next read.
type bodyReader struct {
	resp    *http.Response
	buf     []byte
	pending []byte
	done    bool
}

func (r *bodyReader) Recv() (string, error) {
	if r.done {
		return "", io.EOF
	}
	for {
		n, err := r.resp.Body.Read(r.buf)
		if n > 0 {
			data := append(r.pending, r.buf[:n]...)
			cut := validPrefix(data)
			r.pending = append([]byte(nil), data[cut:]...)
			if cut > 0 {
				return string(data[:cut]), nil
			}
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: %w", rag.ErrGenerationStream, err)
		}
		if len(r.pending) > 0 {
			tail := string(r.pending)
			r.pending = nil
			return tail, nil
		}
		r.done = true
		switch status := r.resp.Trailer.Get("X-Stream-Status"); status {
		case "", string(stream.Completed):
			return "", io.EOF
		case string(stream.Cancelled):
			return "", stream.ErrClosed
		default:
			msg := r.resp.Trailer.Get("X-Stream-Error")
			if msg == "" {
				msg = status
			}
			return "", fmt.Errorf("%w: %s", rag.ErrGenerationStream, msg)
		}
	}
}

func (r *bodyReader) Close() error {
	return r.resp.Body.Close()
}

// validPrefix returns the length of data that ends on a rune boundary.
func validPrefix(data []byte) int {
	end := len(data)
	for i := 1; i <= utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if b < utf8.RuneSelf {
			return end
		}
		if utf8.RuneStart(b) {
			if utf8.FullRune(data[len(data)-i:]) {
				return end
			}
			return len(data) - i
		}
	}
	return end
}
