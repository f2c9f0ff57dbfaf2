package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aldoetobex/section1983-backend/pkg/config"
)

/*
Supabase wraps minimal calls to the Supabase Storage REST API.

A legacy service_role JWT needs both `apikey` and `Authorization: Bearer <token>`;
both are always sent.
*/
type Supabase struct {
	baseURL string // e.g. https://<project>.supabase.co
	apiKey  string // service_role JWT or secret API key
	bucket  string
	client  *http.Client
}

func NewSupabase(cfg config.SupabaseConfig) *Supabase {
	return &Supabase{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.Key,
		bucket:  cfg.Bucket,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Supabase) objectURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)
}

func (s *Supabase) do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	return s.client.Do(req)
}

// Upload sends a new object to: POST /storage/v1/object/{bucket}/{objectName}
// x-upsert lets a regenerated PDF replace the previous one.
func (s *Supabase) Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(key), r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("supabase upload error: %s | %s", res.Status, string(body))
	}
	return nil
}

// SignedURL creates a short-lived signed URL:
// POST /storage/v1/object/sign/{bucket}/{objectName}  body: {"expiresIn": <seconds>}
func (s *Supabase) SignedURL(ctx context.Context, key string, expiresInSeconds int) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, s.bucket, key)
	body, _ := json.Marshal(map[string]int{"expiresIn": expiresInSeconds})

	res, err := s.do(ctx, http.MethodPost, url, bytes.NewReader(body), "application/json")
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("supabase sign error: %s | %s", res.Status, string(b))
	}

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("empty signedURL in response")
	}
	// API returns a relative path.
	return s.baseURL + "/storage/v1" + out.SignedURL, nil
}

// Delete removes an object by key. 404 counts as success.
func (s *Supabase) Delete(ctx context.Context, key string) error {
	res, err := s.do(ctx, http.MethodDelete, s.objectURL(key), nil, "")
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("supabase delete error: %s | %s", res.Status, string(b))
	}
	return nil
}

// BulkDelete removes multiple objects in one call:
// POST /storage/v1/object/{bucket}/remove  body: {"prefixes": [...]}
func (s *Supabase) BulkDelete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/storage/v1/object/%s/remove", s.baseURL, s.bucket)
	body, _ := json.Marshal(map[string][]string{"prefixes": keys})

	res, err := s.do(ctx, http.MethodPost, url, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("supabase bulk delete error: %s | %s", res.Status, string(b))
	}
	return nil
}

// EvidenceKey builds documents/<documentID>/evidence/<evidenceID>/<filename>.
func EvidenceKey(documentID, evidenceID, filename string) string {
	return path.Join("documents", documentID, "evidence", evidenceID, path.Base(filename))
}

// ComplaintKey is the object key of a document's generated PDF.
func ComplaintKey(documentID string) string {
	return path.Join("documents", documentID, "complaint.pdf")
}
