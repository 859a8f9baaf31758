package attendance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"

	"classattend/internal/apperr"
	"classattend/internal/classifier"
	"classattend/internal/faceclient"
	"classattend/internal/media"
	"classattend/internal/metrics"
)

// EnrollRequest adds one student to a class/section.
type EnrollRequest struct {
	Name    string
	Class   string
	Section string
	Photo   []byte
}

// EnrollResult reports what enrollment achieved. Student is set as soon as the
// record exists, even when a later step failed.
type EnrollResult struct {
	Student    Student
	QRRef      string
	QRImage    []byte
	Model      *classifier.Model
	RetrainErr error
}

// AddStudent stores the photo, creates the student, attaches a QR code carrying
// the new identity and retrains the classifier. A failed retrain is reported in
// the result without undoing the enrollment.
func (s *Service) AddStudent(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	name := norm.NFC.String(strings.TrimSpace(req.Name))
	class, section := strings.TrimSpace(req.Class), strings.TrimSpace(req.Section)
	if name == "" {
		return EnrollResult{}, apperr.Invalid("student name required")
	}
	if class == "" || section == "" {
		return EnrollResult{}, apperr.Invalid("class and section required")
	}
	if len(req.Photo) == 0 {
		return EnrollResult{}, apperr.Invalid("student photo required")
	}

	photo, err := media.NormalizePhoto(req.Photo, s.photoMaxSize)
	if err != nil {
		return EnrollResult{}, err
	}
	photoRef, err := s.media.Put(ctx, media.PhotoKey(uuid.NewString()), photo)
	if err != nil {
		return EnrollResult{}, err
	}

	id, err := s.repo.AddStudent(ctx, name, class, section, photoRef)
	if err != nil {
		return EnrollResult{}, err
	}
	metrics.Enrollments.Inc()
	res := EnrollResult{Student: Student{ID: id, Name: name, Class: class, Section: section, PhotoRef: photoRef, CreatedAt: time.Now().UTC()}}
	logger := log.With().Int64("student_id", id).Str("class", class).Str("section", section).Logger()
	logger.Info().Str("photo_ref", photoRef).Msg("student enrolled")

	qrImage, err := s.qr.Encode(strconv.FormatInt(id, 10))
	if err != nil {
		return res, err
	}
	qrRef, err := s.media.Put(ctx, media.QRKey(id), qrImage)
	if err != nil {
		return res, err
	}
	if err := s.repo.AttachQR(ctx, id, qrRef); err != nil {
		return res, err
	}
	res.Student.QRRef = qrRef
	res.QRRef = qrRef
	res.QRImage = qrImage

	res.Model, res.RetrainErr = s.Retrain(ctx, nil)
	if res.RetrainErr != nil {
		logger.Warn().Err(res.RetrainErr).Msg("retrain after enrollment failed")
	}
	return res, nil
}

// Retrain rebuilds the classifier over the whole roster. Each student
// contributes the first face found in their photo, or the whole photo when
// none is found. Students whose photo cannot be read are skipped.
func (s *Service) Retrain(ctx context.Context, progress func(done, total int)) (m *classifier.Model, err error) {
	defer func() {
		metrics.Retrains.WithLabelValues(metrics.Outcome(apperr.Kind(err))).Inc()
	}()

	roster, err := s.repo.ListStudents(ctx, "", "")
	if err != nil {
		return nil, err
	}

	samples := make([]faceclient.Sample, 0, len(roster))
	for i, st := range roster {
		if progress != nil {
			progress(i, len(roster))
		}
		photo, err := s.media.Get(ctx, st.PhotoRef)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrIO) || errors.Is(err, apperr.ErrInvalidArgument) {
				log.Warn().Err(err).Int64("student_id", st.ID).Msg("skipping student without readable photo")
				continue
			}
			return nil, err
		}
		faces, err := s.detector.Detect(ctx, photo)
		if err != nil {
			if errors.Is(err, apperr.ErrInvalidArgument) {
				log.Warn().Err(err).Int64("student_id", st.ID).Msg("skipping student with undecodable photo")
				continue
			}
			return nil, err
		}
		crop := photo
		if len(faces) > 0 {
			crop = faces[0].Image
		}
		samples = append(samples, faceclient.Sample{StudentID: st.ID, Image: crop})
	}
	if progress != nil {
		progress(len(roster), len(roster))
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no training images", apperr.ErrUntrained)
	}

	blob, err := s.recognizer.Train(ctx, samples)
	if err != nil {
		return nil, err
	}
	m, err = s.models.Replace(ctx, blob, len(samples))
	if err != nil {
		return nil, err
	}
	log.Info().Int64("model_version", m.Version).Int("samples", len(samples)).Int("roster", len(roster)).Msg("classifier retrained")
	return m, nil
}
