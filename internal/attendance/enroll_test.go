package attendance

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"classattend/internal/apperr"
	"classattend/internal/faceclient"
	"classattend/internal/qr"
)

func TestAddStudent_Enrolls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.AddStudent(ctx, EnrollRequest{Name: " Ava ", Class: "5", Section: "A", Photo: pngImage(t, 90)})
	if err != nil {
		t.Fatalf("AddStudent: %v", err)
	}
	if res.Student.ID <= 0 || res.Student.Name != "Ava" {
		t.Errorf("unexpected student %+v", res.Student)
	}
	if !strings.HasPrefix(res.Student.PhotoRef, "students/") || !strings.HasSuffix(res.Student.PhotoRef, ".jpg") {
		t.Errorf("unexpected photo ref %q", res.Student.PhotoRef)
	}
	wantQR := "qr/" + strconv.FormatInt(res.Student.ID, 10) + ".png"
	if res.QRRef != wantQR {
		t.Errorf("QRRef = %q, want %q", res.QRRef, wantQR)
	}
	if res.RetrainErr != nil || res.Model == nil || res.Model.Version != 1 {
		t.Errorf("expected retrained model version 1, got %+v err=%v", res.Model, res.RetrainErr)
	}

	stored, err := f.repo.GetStudent(ctx, res.Student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.QRRef != wantQR || stored.PhotoRef != res.Student.PhotoRef {
		t.Errorf("stored student %+v does not match result", stored)
	}

	// The stored QR image carries the new identity.
	png, err := f.media.Get(ctx, res.QRRef)
	if err != nil {
		t.Fatal(err)
	}
	text, ok, err := qr.New(256).Decode(png)
	if err != nil || !ok || text != strconv.FormatInt(res.Student.ID, 10) {
		t.Errorf("decoded %q ok=%v err=%v", text, ok, err)
	}

	// The whole photo trains when no face is found in it.
	if len(f.recognizer.trained) != 1 || len(f.recognizer.trained[0]) != 1 || f.recognizer.trained[0][0].StudentID != res.Student.ID {
		t.Errorf("unexpected training samples %+v", f.recognizer.trained)
	}

	current, err := f.models.Current(ctx)
	if err != nil || current.Version != 1 {
		t.Errorf("expected model version 1 in use, got %+v err=%v", current, err)
	}
}

func TestAddStudent_RetrainFailureKeepsStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recognizer.trainErr = apperr.Capability("train", errors.New("service down"))

	res, err := f.svc.AddStudent(ctx, EnrollRequest{Name: "Ava", Class: "5", Section: "A", Photo: pngImage(t, 90)})
	if err != nil {
		t.Fatalf("AddStudent: %v", err)
	}
	if !errors.Is(res.RetrainErr, apperr.ErrCapability) {
		t.Errorf("expected capability retrain error, got %v", res.RetrainErr)
	}
	if _, err := f.repo.GetStudent(ctx, res.Student.ID); err != nil {
		t.Errorf("student should exist: %v", err)
	}
	if _, err := f.models.Current(ctx); !errors.Is(err, apperr.ErrUntrained) {
		t.Errorf("expected classifier to stay untrained, got %v", err)
	}
}

func TestAddStudent_Validation(t *testing.T) {
	f := newFixture(t)
	cases := []EnrollRequest{
		{Class: "5", Section: "A", Photo: pngImage(t, 1)},
		{Name: "Ava", Section: "A", Photo: pngImage(t, 1)},
		{Name: "Ava", Class: "5", Photo: pngImage(t, 1)},
		{Name: "Ava", Class: "5", Section: "A"},
		{Name: "Ava", Class: "5", Section: "A", Photo: []byte("not an image")},
	}
	for i, req := range cases {
		if _, err := f.svc.AddStudent(context.Background(), req); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
	roster, err := f.repo.ListStudents(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 0 {
		t.Errorf("invalid enrollments must not create students, got %+v", roster)
	}
}

func TestRetrain_UsesFaceCrops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := addStudent(t, f.repo, "Ava", "5", "A")
	if _, err := f.media.Put(ctx, "students/Ava.jpg", []byte("ava-photo")); err != nil {
		t.Fatal(err)
	}
	f.detector.faces["ava-photo"] = []faceclient.Face{{Image: []byte("ava-crop")}, {Image: []byte("other")}}

	var last [2]int
	m, err := f.svc.Retrain(ctx, func(done, total int) { last = [2]int{done, total} })
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if m.Samples != 1 || last != [2]int{1, 1} {
		t.Errorf("unexpected model %+v progress %v", m, last)
	}
	sample := f.recognizer.trained[0][0]
	if sample.StudentID != id || string(sample.Image) != "ava-crop" {
		t.Errorf("expected the first face crop, got %+v", sample)
	}

	// A second retrain moves to the next version.
	m2, err := f.svc.Retrain(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Version != m.Version+1 {
		t.Errorf("expected version %d, got %d", m.Version+1, m2.Version)
	}
}

func TestRetrain_NoUsablePhotos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Retrain(ctx, nil); !errors.Is(err, apperr.ErrUntrained) {
		t.Errorf("empty roster: expected ErrUntrained, got %v", err)
	}

	// Photo reference points at nothing in media.
	addStudent(t, f.repo, "Ava", "5", "A")
	if _, err := f.svc.Retrain(ctx, nil); !errors.Is(err, apperr.ErrUntrained) {
		t.Errorf("missing photo: expected ErrUntrained, got %v", err)
	}
	if len(f.recognizer.trained) != 0 {
		t.Errorf("train should not be called without samples")
	}
}

func TestRetrain_SkipsUnreadablePhotoRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ava := addStudent(t, f.repo, "Ava", "5", "A")
	if _, err := f.media.Put(ctx, "students/Ava.jpg", []byte("ava-photo")); err != nil {
		t.Fatal(err)
	}
	// "/" is rejected by the media area as an invalid key.
	if _, err := f.repo.AddStudent(ctx, "Ben", "5", "A", "/"); err != nil {
		t.Fatal(err)
	}

	m, err := f.svc.Retrain(ctx, nil)
	if err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if m.Samples != 1 {
		t.Errorf("expected one sample, got %d", m.Samples)
	}
	if got := f.recognizer.trained[0]; len(got) != 1 || got[0].StudentID != ava {
		t.Errorf("expected only Ava's sample, got %+v", got)
	}
}
