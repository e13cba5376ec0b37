// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

// Package upload implements the host upload channel (spec.md §6) that
// pkg/registry.FileRegistry calls to ship dropped-file content back to the
// host, dialed with the same *http.Client-with-timeout pattern used
// throughout this codebase's other local sidecar clients.
package upload

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

// HTTPUploader posts file content as a multipart/form-data request to a
// local host endpoint. remoteRelPath becomes the "path" form field so the
// host can place the content under the right namespace (files/,
// package_files/).
type HTTPUploader struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPUploader builds an HTTPUploader posting to baseURL + "/store".
func NewHTTPUploader(baseURL string) *HTTPUploader {
	return &HTTPUploader{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload satisfies pkg/registry.Uploader.
func (u *HTTPUploader) Upload(ctx context.Context, localPath, remoteRelPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if err := mw.WriteField("path", remoteRelPath); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", remoteRelPath)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return mw.Close()
		}()
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/store", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", remoteRelPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload %s: host returned status %d: %s", remoteRelPath, resp.StatusCode, string(body))
	}
	return nil
}

// Recorder is an in-memory Uploader for tests: it records every call
// instead of performing network I/O.
type Recorder struct {
	Calls []RecordedUpload
	Err   error
}

// RecordedUpload is one Upload invocation captured by Recorder.
type RecordedUpload struct {
	LocalPath     string
	RemoteRelPath string
}

// Upload satisfies pkg/registry.Uploader.
func (r *Recorder) Upload(_ context.Context, localPath, remoteRelPath string) error {
	if r.Err != nil {
		return r.Err
	}
	r.Calls = append(r.Calls, RecordedUpload{LocalPath: localPath, RemoteRelPath: remoteRelPath})
	return nil
}
