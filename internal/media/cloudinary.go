package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"classattend/internal/apperr"
)

// Cloudinary stores media through the Cloudinary upload API; references are secure URLs.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
}

// NewCloudinary creates a Cloudinary-backed store.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) *Cloudinary {
	return &Cloudinary{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   "https://api.cloudinary.com",
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

// Put uploads data with a public id derived from key, overwriting any previous upload.
func (c *Cloudinary) Put(ctx context.Context, key string, data []byte) (string, error) {
	publicID := strings.TrimSuffix(key, path.Ext(key))
	params := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		"api_key":   c.APIKey,
		"public_id": publicID,
		"overwrite": "true",
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", path.Base(key))
	if err != nil {
		return "", apperr.IO("cloudinary form", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", apperr.IO("cloudinary form", err)
	}
	w.Close()

	url := fmt.Sprintf("%s/v1_1/%s/image/upload", c.BaseURL, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", apperr.IO("cloudinary request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", apperr.IO("cloudinary upload", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", apperr.IO("cloudinary upload", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	var result uploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", apperr.IO("cloudinary decode", err)
	}
	if result.SecureURL == "" {
		return "", apperr.IO("cloudinary upload", fmt.Errorf("no secure_url in response"))
	}
	return result.SecureURL, nil
}

// Get downloads the asset at ref.
func (c *Cloudinary) Get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, apperr.Invalid("media ref %q", ref)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.IO("cloudinary download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFoundf("media %s", ref)
	}
	if resp.StatusCode >= 300 {
		return nil, apperr.IO("cloudinary download", fmt.Errorf("status %s", resp.Status))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.IO("cloudinary download", err)
	}
	return data, nil
}

// sign computes the API signature; api_key, file and resource_type are not signed.
func (c *Cloudinary) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + c.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}
