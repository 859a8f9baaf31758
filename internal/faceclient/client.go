package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/classifier"
	"classattend/internal/media"
)

// Box is a face bounding box in pixel coordinates, x2/y2 exclusive.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Face is one detected face: the cropped JPEG and where it was found.
type Face struct {
	Image []byte
	Box   Box
	Score float64
}

// Sample is one labelled training image.
type Sample struct {
	StudentID int64
	Image     []byte
}

// Prediction is the classifier answer for one face. Confidence is lower-is-better.
type Prediction struct {
	StudentID  int64
	Confidence float64
	Matched    bool
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	Threshold float64
	ImageSize int
}

// New creates a client. threshold is the accept limit applied to predictions.
func New(baseURL string, threshold float64, imageSize int) *Client {
	if threshold <= 0 {
		threshold = 70
	}
	if imageSize <= 0 {
		imageSize = 200
	}
	return &Client{
		BaseURL:   baseURL,
		Threshold: threshold,
		ImageSize: imageSize,
		HTTP: &http.Client{
			Timeout: 60 * time.Second, // training over a full roster can take a while
		},
	}
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Capability("health", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperr.Capability("health", fmt.Errorf("face service unhealthy: %s", resp.Status))
	}
	return nil
}

// Detect finds faces in img and returns them cropped, in the service's order.
func (c *Client) Detect(ctx context.Context, img []byte) ([]Face, error) {
	decoded, err := media.Decode(img)
	if err != nil {
		return nil, err
	}

	var out struct {
		Faces []struct {
			Box
			Score float64 `json:"score"`
		} `json:"faces"`
	}
	if err := c.post(ctx, "/detect", map[string]any{"image": img}, &out); err != nil {
		return nil, apperr.Capability("detect", err)
	}

	bounds := decoded.Bounds()
	faces := make([]Face, 0, len(out.Faces))
	for i, f := range out.Faces {
		r := image.Rect(f.X1, f.Y1, f.X2, f.Y2).Intersect(bounds)
		if r.Empty() {
			return nil, apperr.Capability("detect", fmt.Errorf("face %d box %+v outside %dx%d image", i+1, f.Box, bounds.Dx(), bounds.Dy()))
		}
		crop, err := media.EncodeJPEG(media.Crop(decoded, r))
		if err != nil {
			return nil, apperr.Capability("detect", err)
		}
		faces = append(faces, Face{
			Image: crop,
			Box:   Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y},
			Score: f.Score,
		})
	}
	return faces, nil
}

// Train builds a classifier over samples and returns the serialized model.
func (c *Client) Train(ctx context.Context, samples []Sample) ([]byte, error) {
	type sample struct {
		Label int64  `json:"label"`
		Image []byte `json:"image"`
	}
	payload := struct {
		ImageSize int      `json:"image_size"`
		Samples   []sample `json:"samples"`
	}{ImageSize: c.ImageSize}
	for _, s := range samples {
		payload.Samples = append(payload.Samples, sample{Label: s.StudentID, Image: s.Image})
	}

	var out struct {
		Model []byte `json:"model"`
	}
	if err := c.post(ctx, "/train", payload, &out); err != nil {
		return nil, apperr.Capability("train", err)
	}
	if len(out.Model) == 0 {
		return nil, apperr.Capability("train", fmt.Errorf("face service returned an empty model"))
	}
	return out.Model, nil
}

// Predict classifies one face with model. A label is accepted only when its
// confidence is within the threshold.
func (c *Client) Predict(ctx context.Context, model *classifier.Model, face []byte) (Prediction, error) {
	if model == nil {
		return Prediction{}, apperr.ErrUntrained
	}
	payload := map[string]any{
		"model_version": model.Version,
		"model":         model.Blob,
		"image":         face,
		"image_size":    c.ImageSize,
		"threshold":     c.Threshold,
	}
	var out struct {
		Label      *int64   `json:"label"`
		Confidence *float64 `json:"confidence"`
	}
	if err := c.post(ctx, "/predict", payload, &out); err != nil {
		return Prediction{}, apperr.Capability("predict", err)
	}
	if out.Confidence == nil {
		return Prediction{}, apperr.Capability("predict", fmt.Errorf("response without confidence"))
	}

	p := Prediction{Confidence: *out.Confidence}
	if out.Label != nil && *out.Label > 0 && p.Confidence <= c.Threshold {
		p.StudentID = *out.Label
		p.Matched = true
	}
	return p, nil
}
