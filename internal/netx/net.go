// Package netx moves file bodies to and from presigned object-store URLs.
package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrUnexpectedStatus is wrapped by Put and Get for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Put uploads body to a presigned PUT url. size is sent as Content-Length
// when non-negative.
func Put(ctx context.Context, hc *http.Client, url string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if size >= 0 {
		req.ContentLength = size
	}

	resp, err := client(hc).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("upload failed: %s; body: %s: %w", resp.Status, string(b), ErrUnexpectedStatus)
	}
	return nil
}

// Get opens a presigned GET url. The caller closes the returned body.
func Get(ctx context.Context, hc *http.Client, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := client(hc).Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("download failed: %s; body: %s: %w", resp.Status, string(b), ErrUnexpectedStatus)
	}
	return resp.Body, resp.ContentLength, nil
}

func client(hc *http.Client) *http.Client {
	if hc == nil {
		return http.DefaultClient
	}
	return hc
}
