package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starwalkn/gotenberg-go-client/v8"
	"github.com/starwalkn/gotenberg-go-client/v8/document"
)

// PDFConverter turns encoded HTML into a fixed-layout PDF through a Gotenberg
// instance. Conversion failures report back to the orchestrator, which
// records the corresponding history entry.
type PDFConverter struct {
	client  *gotenberg.Client
	timeout time.Duration
}

func NewPDFConverter(gotenbergURL string, timeout time.Duration) (*PDFConverter, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	client, err := gotenberg.NewClient(gotenbergURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("create gotenberg client: %w", err)
	}
	return &PDFConverter{client: client, timeout: timeout}, nil
}

// Convert renders the HTML page to PDF bytes. Transient failures are retried
// with a short linear backoff before giving up.
func (c *PDFConverter) Convert(ctx context.Context, htmlPage string, landscape bool) ([]byte, error) {
	const maxRetries = 3
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		convertCtx, cancel := context.WithTimeout(ctx, c.timeout)
		data, err := c.convertOnce(convertCtx, htmlPage, landscape)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	return nil, fmt.Errorf("convert to pdf after retries: %w", lastErr)
}

func (c *PDFConverter) convertOnce(ctx context.Context, htmlPage string, landscape bool) ([]byte, error) {
	index, err := document.FromReader("index.html", strings.NewReader(htmlPage))
	if err != nil {
		return nil, fmt.Errorf("build index document: %w", err)
	}
	req := gotenberg.NewHTMLRequest(index)
	if landscape {
		req.Landscape()
	}
	resp, err := c.client.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pdf body: %w", err)
	}
	return data, nil
}
