// Package net fetches remote datasets over HTTP.
package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	clientAgent      = "hscore"

	// MaxDownloadBytes caps a dataset download.
	MaxDownloadBytes = 256 << 20
)

var (
	reqTransport = &http.Transport{
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}

	ErrorURLNotFound = errors.New("URL not found")
	ErrorTooLarge    = errors.New("download exceeds size limit")
)

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	l := strings.ToLower(strings.TrimSpace(location))
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// GetHTTPClient returns a client with the shared transport and timeout.
func GetHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   time.Duration(timeoutInSeconds) * time.Second,
		Transport: reqTransport,
	}
}

func getResp(ctx context.Context, c *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	req.Header.Set("User-Agent", clientAgent)
	return c.Do(req) //nolint:gosec // URL is operator supplied
}

// Download saves url to path. A partial file is removed on failure.
func Download(ctx context.Context, c *http.Client, url, path string) (retErr error) {
	if c == nil {
		c = GetHTTPClient()
	}

	resp, err := getResp(ctx, c, url)
	if err != nil {
		return fmt.Errorf("error downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrorURLNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
		if retErr != nil {
			os.Remove(path)
		}
	}()

	n, err := io.Copy(out, io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return fmt.Errorf("error saving downloaded content to file: %w", err)
	}
	if n > MaxDownloadBytes {
		return ErrorTooLarge
	}

	slog.Debug("downloaded", "url", url, "path", path, "bytes", n)
	return nil
}

// FetchToTemp downloads url into a new file under dir and returns its path
// with a cleanup func that removes it.
func FetchToTemp(ctx context.Context, url, dir string) (string, func(), error) {
	f, err := os.CreateTemp(dir, "dataset-*"+filepath.Ext(strings.SplitN(url, "?", 2)[0]))
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	if err := Download(ctx, nil, url, path); err != nil {
		os.Remove(path)
		return "", nil, err
	}
	return path, func() { os.Remove(path) }, nil
}
