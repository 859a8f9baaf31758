package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"classattend/internal/apperr"
	"classattend/internal/classifier"
)

func groupPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for x := 0; x < 300; x++ {
		for y := 0; y < 200; y++ {
			img.Set(x, y, color.RGBA{200, 180, 160, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newService(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, 70, 200)
}

func TestDetect_CropsAndClampsBoxes(t *testing.T) {
	c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		var in struct {
			Image []byte `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in.Image) == 0 {
			http.Error(w, "missing image", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"faces":[{"x1":10,"y1":20,"x2":60,"y2":90,"score":0.97},{"x1":-5,"y1":150,"x2":40,"y2":260,"score":0.8}]}`))
	})

	faces, err := c.Detect(context.Background(), groupPhoto(t))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].Box != (Box{10, 20, 60, 90}) {
		t.Errorf("unexpected first box %+v", faces[0].Box)
	}
	if faces[1].Box != (Box{0, 150, 40, 200}) {
		t.Errorf("expected second box clamped, got %+v", faces[1].Box)
	}
	crop, _, err := image.Decode(bytes.NewReader(faces[0].Image))
	if err != nil {
		t.Fatalf("decode crop: %v", err)
	}
	if b := crop.Bounds(); b.Dx() != 50 || b.Dy() != 70 {
		t.Errorf("expected 50x70 crop, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestDetect_BoxOutsideImageIsCapabilityFailure(t *testing.T) {
	c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces":[{"x1":400,"y1":400,"x2":500,"y2":500}]}`))
	})
	_, err := c.Detect(context.Background(), groupPhoto(t))
	if !errors.Is(err, apperr.ErrCapability) {
		t.Fatalf("expected ErrCapability, got %v", err)
	}
}

func TestDetect_ServiceError(t *testing.T) {
	c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})
	_, err := c.Detect(context.Background(), groupPhoto(t))
	if !errors.Is(err, apperr.ErrCapability) {
		t.Fatalf("expected ErrCapability, got %v", err)
	}
}

func TestDetect_NotAnImage(t *testing.T) {
	c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("service must not be called for undecodable input")
	})
	_, err := c.Detect(context.Background(), []byte("garbage"))
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTrain(t *testing.T) {
	c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			ImageSize int `json:"image_size"`
			Samples   []struct {
				Label int64  `json:"label"`
				Image []byte `json:"image"`
			} `json:"samples"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if in.ImageSize != 200 || len(in.Samples) != 2 || in.Samples[1].Label != 2 {
			http.Error(w, "unexpected payload", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string][]byte{"model": []byte("lbph-model")})
	})

	blob, err := c.Train(context.Background(), []Sample{{1, []byte("a")}, {2, []byte("b")}})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if string(blob) != "lbph-model" {
		t.Errorf("unexpected model %q", blob)
	}
}

func TestTrain_EmptyModel(t *testing.T) {
	c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":""}`))
	})
	if _, err := c.Train(context.Background(), []Sample{{1, []byte("a")}}); !errors.Is(err, apperr.ErrCapability) {
		t.Fatalf("expected ErrCapability, got %v", err)
	}
}

func TestPredict_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantMatch bool
		wantID    int64
		wantErr   error
	}{
		{"accepted", `{"label":3,"confidence":42.5}`, true, 3, nil},
		{"at threshold", `{"label":3,"confidence":70}`, true, 3, nil},
		{"too far", `{"label":3,"confidence":88.1}`, false, 0, nil},
		{"unknown label", `{"label":null,"confidence":91}`, false, 0, nil},
		{"malformed", `{"label":3}`, false, 0, apperr.ErrCapability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newService(t, func(w http.ResponseWriter, r *http.Request) {
				var in map[string]any
				if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				if in["model_version"].(float64) != 4 || in["threshold"].(float64) != 70 {
					http.Error(w, "unexpected payload", http.StatusBadRequest)
					return
				}
				w.Write([]byte(tt.body))
			})
			p, err := c.Predict(context.Background(), &classifier.Model{Version: 4, Blob: []byte("m")}, []byte("face"))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if p.Matched != tt.wantMatch || p.StudentID != tt.wantID {
				t.Errorf("got %+v", p)
			}
		})
	}
}

func TestPredict_NoModel(t *testing.T) {
	c := New("http://unused", 0, 0)
	if _, err := c.Predict(context.Background(), nil, []byte("face")); !errors.Is(err, apperr.ErrUntrained) {
		t.Fatalf("expected ErrUntrained, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
