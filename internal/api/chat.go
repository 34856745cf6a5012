package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rhema/internal/auth"
	"rhema/internal/rag"
	"rhema/internal/stream"
	"rhema/internal/worker"
)

const (
	headerContextMatches = "X-Context-Matches"
	headerRequestID      = "X-Request-ID"
	headerStreamStatus   = "X-Stream-Status"
	headerStreamError    = "X-Stream-Error"
)

type chatRequest struct {
	Query string `json:"query"`
}

// chat streams the answer as plain text. The final status is sent as the
// X-Stream-Status trailer so clients can tell a cut-off answer from a full one.
func (h *Handler) chat(c *gin.Context) {
	rc := auth.RequestContextFrom(c)
	log := h.log.With("request_id", rc.RequestID)

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": rag.ErrEmptyQuery.Error()})
		return
	}
	if h.pipeline == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query pipeline is not configured"})
		return
	}

	key := rc.Caller.UserID
	if key == "" {
		key = "ip:" + c.ClientIP()
	}
	release, err := h.streams.Acquire(c.Request.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrStreamOpen):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "a response is already streaming, please wait"})
		case errors.Is(err, worker.ErrDispatcherBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		default:
			// client went away while queued
			c.Status(http.StatusRequestTimeout)
		}
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	answer, err := h.pipeline.Answer(ctx, rc, req.Query)
	if err != nil {
		status, msg := pipelineErrorStatus(err)
		log.Error("query failed", "status", status, "error", err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	reader := answer.Stream

	// Read the first increment before committing headers so a generation that
	// fails to start still gets a JSON error.
	first, firstErr := firstIncrement(reader)
	if firstErr != nil && !errors.Is(firstErr, io.EOF) {
		reader.Close()
		log.Error("generation failed to start", "error", firstErr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		reader.Close()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Accel-Buffering", "no")
	header.Set(headerContextMatches, strconv.Itoa(len(answer.Matches)))
	header.Set("Trailer", headerStreamStatus+", "+headerStreamError)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	write := func(text string) error {
		if _, err := c.Writer.WriteString(text); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	status, streamErr := stream.Completed, error(nil)
	if errors.Is(firstErr, io.EOF) {
		reader.Close()
	} else {
		if err := write(first); err != nil {
			reader.Close()
			status, streamErr = stream.Cancelled, err
		} else {
			status, streamErr = stream.Drain(ctx, reader, write)
		}
	}

	// a deadline hit while the client is still connected is a server-side failure
	if status == stream.Cancelled && c.Request.Context().Err() == nil && errors.Is(streamErr, context.DeadlineExceeded) {
		status = stream.Failed
	}
	header.Set(headerStreamStatus, string(status))
	if status == stream.Failed {
		header.Set(headerStreamError, "generation interrupted")
		log.Error("answer stream failed", "matches", len(answer.Matches), "error", streamErr)
		return
	}
	log.Info("answer streamed", "status", string(status), "matches", len(answer.Matches), "personalized", answer.Profile != nil)
}

// firstIncrement skips empty increments until text, EOF or an error arrives.
func firstIncrement(r stream.Reader) (string, error) {
	for {
		text, err := r.Recv()
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
	}
}

func pipelineErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrEmptyQuery):
		return http.StatusBadRequest, rag.ErrEmptyQuery.Error()
	case errors.Is(err, rag.ErrEmbeddingUnavailable):
		return http.StatusBadGateway, "could not process your question"
	case errors.Is(err, rag.ErrMatchQuery):
		return http.StatusInternalServerError, "could not search the library"
	case errors.Is(err, rag.ErrConfiguration):
		return http.StatusInternalServerError, "service is not configured"
	default:
		return http.StatusInternalServerError, "generation failed"
	}
}
