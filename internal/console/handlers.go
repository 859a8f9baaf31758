package console

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/report"
)

func (s *Server) today() civil.Date {
	return civil.DateOf(s.now())
}

// dateParam reads a YYYY-MM-DD value, defaulting to today when absent.
func (s *Server) dateParam(v string) (civil.Date, error) {
	if strings.TrimSpace(v) == "" {
		return s.today(), nil
	}
	return attendance.ParseDate(v)
}

func classSection(class, section string) (string, string, error) {
	class, section = strings.TrimSpace(class), strings.TrimSpace(section)
	if class == "" || section == "" {
		return "", "", apperr.Invalid("class and section required")
	}
	return class, section, nil
}

func sessionURL(class, section string, date civil.Date, msg string) string {
	q := url.Values{"class": {class}, "section": {section}, "date": {date.String()}}
	if msg != "" {
		q.Set("msg", msg)
	}
	return "/session?" + q.Encode()
}

// upload returns the bytes of an optional multipart file; nil when the field is absent.
func upload(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperr.Invalid("read upload %s: %v", field, err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.IO("open upload", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperr.IO("read upload", err)
	}
	return data, nil
}

func (s *Server) home(c *gin.Context) {
	classes, err := s.repo.ListClasses(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	today := s.today()
	s.render(c, http.StatusOK, "home", gin.H{
		"Title":    "Attendance",
		"School":   s.opts.School,
		"Enrolled": classes,
		"Today":    today.String(),
		"Month":    attendance.MonthOf(today).String(),
		"Msg":      c.Query("msg"),
	})
}

func (s *Server) session(c *gin.Context) {
	class, section, err := classSection(c.Query("class"), c.Query("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	date, err := s.dateParam(c.Query("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	rows, err := s.repo.DayReport(c.Request.Context(), class, section, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	present := 0
	for _, r := range rows {
		if r.Status == attendance.StatusPresent {
			present++
		}
	}
	s.render(c, http.StatusOK, "session", gin.H{
		"Title":   fmt.Sprintf("Class %s-%s on %s", class, section, date),
		"Class":   class,
		"Section": section,
		"Date":    date.String(),
		"Month":   attendance.MonthOf(date).String(),
		"Rows":    rows,
		"Present": present,
		"Absent":  len(rows) - present,
		"Msg":     c.Query("msg"),
	})
}

func (s *Server) take(c *gin.Context) {
	class, section, err := classSection(c.PostForm("class"), c.PostForm("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	date, err := s.dateParam(c.PostForm("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	photo, err := upload(c, "photo")
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.opts.Service.TakeAttendance(c.Request.Context(), attendance.PassRequest{
		Image: photo, Class: class, Section: section, Date: date,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	rows, err := s.repo.DayReport(c.Request.Context(), class, section, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "pass", gin.H{
		"Title":   fmt.Sprintf("Attendance taken for %s-%s", class, section),
		"Result":  res,
		"Date":    date.String(),
		"Rows":    rows,
		"Session": sessionURL(class, section, date, ""),
	})
}

func (s *Server) override(c *gin.Context) {
	class, section, err := classSection(c.PostForm("class"), c.PostForm("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	date, err := s.dateParam(c.PostForm("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	qrImage, err := upload(c, "qr")
	if err != nil {
		s.fail(c, err)
		return
	}
	st, err := s.opts.Service.Override(c.Request.Context(), attendance.OverrideInput{
		QRImage: qrImage,
		Typed:   c.PostForm("student_id"),
	}, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	msg := fmt.Sprintf("Marked %s (id %d) present", st.Name, st.ID)
	if st.Class != class || st.Section != section {
		msg += fmt.Sprintf(" in class %s-%s", st.Class, st.Section)
	}
	c.Redirect(http.StatusSeeOther, sessionURL(class, section, date, msg))
}

func (s *Server) addStudent(c *gin.Context) {
	class, section, err := classSection(c.PostForm("class"), c.PostForm("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !slices.Contains(s.opts.School.Classes, class) || !slices.Contains(s.opts.School.Sections, section) {
		s.fail(c, apperr.Invalid("unknown class/section %s-%s", class, section))
		return
	}
	photo, err := upload(c, "photo")
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.opts.Service.AddStudent(c.Request.Context(), attendance.EnrollRequest{
		Name: c.PostForm("name"), Class: class, Section: section, Photo: photo,
	})
	if err != nil && res.Student.ID == 0 {
		s.fail(c, err)
		return
	}
	s.render(c, http.StatusOK, "enrolled", gin.H{
		"Title":   "Student added",
		"Result":  res,
		"Err":     err,
		"Session": sessionURL(class, section, s.today(), ""),
	})
}

func (s *Server) studentID(c *gin.Context) (int64, error) {
	return attendance.ParseStudentID(c.Param("id"))
}

func (s *Server) student(c *gin.Context) {
	id, err := s.studentID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	month := attendance.MonthOf(s.today())
	if v := c.Query("month"); v != "" {
		if month, err = attendance.ParseMonth(v); err != nil {
			s.fail(c, err)
			return
		}
	}
	st, err := s.repo.GetStudent(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	history, err := s.repo.StudentHistory(c.Request.Context(), id, month)
	if err != nil {
		s.fail(c, err)
		return
	}
	present := 0
	for _, h := range history {
		if h.Status == attendance.StatusPresent {
			present++
		}
	}
	s.render(c, http.StatusOK, "student", gin.H{
		"Title":   st.Name,
		"Student": st,
		"Month":   month.String(),
		"History": history,
		"Present": present,
		"Total":   len(history),
	})
}

func (s *Server) studentQR(c *gin.Context) {
	id, err := s.studentID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	st, err := s.repo.GetStudent(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if st.QRRef == "" {
		s.fail(c, apperr.NotFoundf("QR code for student %d", id))
		return
	}
	png, err := s.opts.Media.Get(c.Request.Context(), st.QRRef)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="student_%d_qr.png"`, id))
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) retrain(c *gin.Context) {
	m, err := s.opts.Service.Retrain(c.Request.Context(), nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	msg := fmt.Sprintf("Classifier retrained: version %d from %d photos", m.Version, m.Samples)
	c.Redirect(http.StatusSeeOther, "/?"+url.Values{"msg": {msg}}.Encode())
}

func attachment(c *gin.Context, name, contentType string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, contentType, body)
}

func (s *Server) dayCSV(c *gin.Context) {
	class, section, err := classSection(c.Query("class"), c.Query("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	date, err := s.dateParam(c.Query("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	rows, err := s.repo.DayReport(c.Request.Context(), class, section, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteDayCSV(&buf, rows); err != nil {
		s.fail(c, err)
		return
	}
	attachment(c, report.DayFileName(class, section, date), "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) monthReport(c *gin.Context) {
	class, section, err := classSection(c.Query("class"), c.Query("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	month, err := attendance.ParseMonth(c.Query("month"))
	if err != nil {
		s.fail(c, err)
		return
	}
	rows, err := s.repo.MonthReport(c.Request.Context(), class, section, month)
	if err != nil {
		s.fail(c, err)
		return
	}

	var buf bytes.Buffer
	switch format := c.DefaultQuery("format", "csv"); format {
	case "csv":
		if err := report.WriteMonthCSV(&buf, rows); err != nil {
			s.fail(c, err)
			return
		}
		attachment(c, report.MonthFileName(class, section, month, "csv"), "text/csv; charset=utf-8", buf.Bytes())
	case "xlsx":
		if err := report.WriteMonthXLSX(&buf, month, rows); err != nil {
			s.fail(c, err)
			return
		}
		attachment(c, report.MonthFileName(class, section, month, "xlsx"),
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	default:
		s.fail(c, apperr.Invalid("format %q must be csv or xlsx", format))
	}
}

func (s *Server) loginPage(c *gin.Context) {
	if s.opts.OperatorPassword == "" {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	s.render(c, http.StatusOK, "login", gin.H{"Title": "Sign in", "Next": c.Query("next")})
}

func (s *Server) login(c *gin.Context) {
	if s.opts.OperatorPassword == "" {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	next := c.PostForm("next")
	if !auth.CheckPassword(s.opts.OperatorPassword, c.PostForm("password")) {
		log.Warn().Str("ip", c.ClientIP()).Msg("operator login failed")
		s.render(c, http.StatusUnauthorized, "login", gin.H{"Title": "Sign in", "Next": next, "Error": "Wrong password"})
		return
	}
	sess, err := auth.Issue("operator", s.opts.JWTIssuer, s.opts.JWTSigningKey, s.opts.SessionTTL)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, sess.Token, int(s.opts.SessionTTL.Seconds()), "/", "", gin.Mode() == gin.ReleaseMode, true)
	c.Redirect(http.StatusSeeOther, localPath(next))
}

// localPath returns next when it is a path on this host, "/" otherwise.
// Browsers read "//host" and "/\host" as protocol-relative URLs.
func localPath(next string) string {
	if !strings.HasPrefix(next, "/") || len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return "/"
	}
	return next
}

func (s *Server) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", gin.Mode() == gin.ReleaseMode, true)
	c.Redirect(http.StatusSeeOther, "/login")
}
