package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// StorageService owns attachment bytes. Callers only ever hold the returned URL.
type StorageService interface {
	UploadFile(ctx context.Context, content io.Reader, objectPath string, contentType string) (string, error)
	DeleteFile(ctx context.Context, fileURL string) error
	GetSignedURL(ctx context.Context, fileURL string) (string, error)
}

const signedURLTTL = time.Hour

// SupabaseStorageService talks to the Supabase Storage REST API with the
// service role key. Stored URLs use the public object form; reads go through
// signed URLs so the bucket itself can stay private.
type SupabaseStorageService struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
}

func NewSupabaseStorageService(baseURL, bucket, serviceKey string) *SupabaseStorageService {
	return &SupabaseStorageService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type storageStatusError struct {
	op     string
	status int
	body   string
}

func (e *storageStatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.op, e.status, e.body)
}

func (s *SupabaseStorageService) UploadFile(ctx context.Context, content io.Reader, objectPath string, contentType string) (string, error) {
	objectPath = path.Clean(strings.Trim(objectPath, "/"))

	resp, err := s.do(ctx, "upload file", http.MethodPost, s.endpoint("object", s.bucket, objectPath), content, func(h http.Header) {
		h.Set("x-upsert", "false")
		h.Set("Content-Type", contentType)
	})
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	return s.endpoint("object", "public", s.bucket, objectPath), nil
}

// DeleteFile treats an already missing object as deleted.
func (s *SupabaseStorageService) DeleteFile(ctx context.Context, fileURL string) error {
	objectPath, err := s.objectPathFromURL(fileURL)
	if err != nil {
		return err
	}

	resp, err := s.do(ctx, "delete file", http.MethodDelete, s.endpoint("object", s.bucket, objectPath), nil, nil)
	if err != nil {
		var statusErr *storageStatusError
		if errors.As(err, &statusErr) && statusErr.status == http.StatusNotFound {
			return nil
		}
		return err
	}
	resp.Body.Close()
	return nil
}

func (s *SupabaseStorageService) GetSignedURL(ctx context.Context, fileURL string) (string, error) {
	objectPath, err := s.objectPathFromURL(fileURL)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]int{"expiresIn": int(signedURLTTL.Seconds())})
	if err != nil {
		return "", fmt.Errorf("marshal signed url payload: %w", err)
	}

	resp, err := s.do(ctx, "get signed url", http.MethodPost, s.endpoint("object", "sign", s.bucket, objectPath), bytes.NewReader(payload), func(h http.Header) {
		h.Set("Content-Type", "application/json")
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("decode signed url response: %w", err)
	}
	if signed.SignedURL == "" {
		return "", fmt.Errorf("signed url missing from response")
	}

	return s.baseURL + "/storage/v1" + signed.SignedURL, nil
}

func (s *SupabaseStorageService) endpoint(parts ...string) string {
	return s.baseURL + "/storage/v1/" + strings.Join(parts, "/")
}

// do sends an authenticated request and turns any non-2xx answer into a
// *storageStatusError. The caller closes the body on success.
func (s *SupabaseStorageService) do(
	ctx context.Context,
	op string,
	method string,
	target string,
	body io.Reader,
	headers func(http.Header),
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
	if headers != nil {
		headers(req.Header)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &storageStatusError{op: op, status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	return resp, nil
}

func (s *SupabaseStorageService) objectPathFromURL(fileURL string) (string, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("parse file url: %w", err)
	}

	for _, prefix := range []string{
		"/storage/v1/object/public/" + s.bucket + "/",
		"/storage/v1/object/" + s.bucket + "/",
	} {
		if objectPath, ok := strings.CutPrefix(parsed.Path, prefix); ok && objectPath != "" {
			return objectPath, nil
		}
	}
	return "", fmt.Errorf("file url does not belong to configured bucket")
}
