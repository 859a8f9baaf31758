package attendance

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/civil"

	"classattend/internal/apperr"
	"classattend/internal/classifier"
	"classattend/internal/faceclient"
	"classattend/internal/media"
	"classattend/internal/qr"
	"classattend/internal/store"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewDB(ctx, store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(db)
}

func mustDate(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func mustMonth(t *testing.T, s string) Month {
	t.Helper()
	m, err := ParseMonth(s)
	if err != nil {
		t.Fatalf("ParseMonth(%q): %v", s, err)
	}
	return m
}

func addStudent(t *testing.T, repo *Repository, name, class, section string) int64 {
	t.Helper()
	id, err := repo.AddStudent(context.Background(), name, class, section, "students/"+name+".jpg")
	if err != nil {
		t.Fatalf("AddStudent(%s): %v", name, err)
	}
	return id
}

func pngImage(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{shade, shade, shade, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeDetector returns the faces registered for an image; unknown images have none.
type fakeDetector struct {
	faces map[string][]faceclient.Face
	err   error
	calls int
}

func (d *fakeDetector) Detect(ctx context.Context, img []byte) ([]faceclient.Face, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.faces[string(img)], nil
}

func faces(names ...string) []faceclient.Face {
	out := make([]faceclient.Face, len(names))
	for i, n := range names {
		out[i] = faceclient.Face{Image: []byte(n)}
	}
	return out
}

// fakeRecognizer answers predictions by face bytes and fails on faces listed in failOn.
type fakeRecognizer struct {
	mu          sync.Mutex
	predictions map[string]faceclient.Prediction
	failOn      map[string]bool
	trainErr    error
	trained     [][]faceclient.Sample
}

func (r *fakeRecognizer) Train(ctx context.Context, samples []faceclient.Sample) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trainErr != nil {
		return nil, r.trainErr
	}
	r.trained = append(r.trained, samples)
	return []byte("model"), nil
}

func (r *fakeRecognizer) Predict(ctx context.Context, model *classifier.Model, face []byte) (faceclient.Prediction, error) {
	if r.failOn[string(face)] {
		return faceclient.Prediction{}, apperr.Capability("predict", errors.New("service down"))
	}
	if p, ok := r.predictions[string(face)]; ok {
		return p, nil
	}
	return faceclient.Prediction{Confidence: 120}, nil
}

func match(id int64, conf float64) faceclient.Prediction {
	return faceclient.Prediction{StudentID: id, Confidence: conf, Matched: true}
}

type fixture struct {
	repo       *Repository
	detector   *fakeDetector
	recognizer *fakeRecognizer
	models     *classifier.Holder
	media      *media.Local
	svc        *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:       newTestRepo(t),
		detector:   &fakeDetector{faces: map[string][]faceclient.Face{}},
		recognizer: &fakeRecognizer{predictions: map[string]faceclient.Prediction{}, failOn: map[string]bool{}},
		models:     classifier.NewHolder(classifier.NewFileStore(filepath.Join(t.TempDir(), "model.json"))),
		media:      media.NewLocal(t.TempDir()),
	}
	f.svc = NewService(Deps{
		Repo:       f.repo,
		Detector:   f.detector,
		Recognizer: f.recognizer,
		Models:     f.models,
		QR:         qr.New(256),
		Media:      f.media,
	})
	return f
}

func (f *fixture) train() {
	f.models.Set(&classifier.Model{Version: 1, Blob: []byte("model"), Samples: 2})
}

func (f *fixture) countRecords(t *testing.T) int {
	t.Helper()
	var n int
	if err := f.repo.db.Client.QueryRow(`SELECT COUNT(*) FROM attendance`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}
