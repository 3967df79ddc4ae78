package server

import (
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/densitylab/crowdcount/inference"
	"github.com/densitylab/crowdcount/render"
)

// allowedExtensions mirrors the formats the loader can decode.
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
}

func allowedFile(name string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// sanitizeFilename strips path components and anything outside a
// conservative character set before the name touches the filesystem.
func sanitizeFilename(name string) string {
	name = filepath.Base(filepath.ToSlash(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "uploaded_image"
	}
	return out
}

func (s *Server) flash(c *gin.Context, msg string) {
	session := sessions.Default(c)
	session.AddFlash(msg)
	if err := session.Save(); err != nil {
		s.log.WithError(err).Warn("saving flash session")
	}
}

func (s *Server) index(c *gin.Context) {
	session := sessions.Default(c)
	flashes := session.Flashes()
	if err := session.Save(); err != nil {
		s.log.WithError(err).Warn("clearing flash session")
	}
	c.HTML(http.StatusOK, "index.html", gin.H{"Flashes": flashes})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"engine": string(s.pred.Engine()),
	})
}

// upload accepts a multipart image, runs the pipeline end to end on the
// request goroutine and renders the result page. The scratch file is removed
// best-effort on every path out.
func (s *Server) upload(c *gin.Context) {
	if c.Request.ContentLength > s.cfg.MaxUploadBytes {
		s.metrics.uploads.WithLabelValues("too_large").Inc()
		s.flash(c, "File is too large. Please upload a smaller image.")
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	file, err := c.FormFile("file")
	if err != nil || file.Filename == "" {
		s.metrics.uploads.WithLabelValues("rejected").Inc()
		s.flash(c, "No file selected")
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	if !allowedFile(file.Filename) {
		s.metrics.uploads.WithLabelValues("rejected").Inc()
		s.flash(c, "Invalid file type. Please upload PNG, JPG, JPEG, GIF, or BMP files only.")
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	name := sanitizeFilename(file.Filename)
	scratch := filepath.Join(s.cfg.UploadDir, uuid.NewString()+"_"+name)
	if err := c.SaveUploadedFile(file, scratch); err != nil {
		s.log.WithError(err).Error("saving upload")
		s.metrics.uploads.WithLabelValues("error").Inc()
		s.flash(c, "An unexpected error occurred. Please try again.")
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	defer os.Remove(scratch)

	start := time.Now()
	est, err := s.pred.Predict(c.Request.Context(), scratch)
	if err != nil {
		s.log.WithError(err).WithField("file", name).Error("prediction failed")
		s.metrics.uploads.WithLabelValues("error").Inc()
		s.flash(c, fmt.Sprintf("Error processing image: %v", err))
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	s.metrics.inferenceSeconds.WithLabelValues(engineLabel(est)).Observe(time.Since(start).Seconds())
	if est.Synthetic {
		s.metrics.syntheticServed.Inc()
	}

	// Render failures are isolated: the count and the surviving image are
	// still delivered with the failed one omitted.
	heat, err := render.Heatmap(est.Density)
	if err != nil {
		s.log.WithError(err).Error("rendering heatmap")
		heat = ""
	}
	original, err := render.Original(est.Input)
	if err != nil {
		s.log.WithError(err).Error("rendering original image")
		original = ""
	}

	s.metrics.uploads.WithLabelValues("ok").Inc()
	s.log.WithFields(logrus.Fields{
		"file":      name,
		"count":     est.Count,
		"synthetic": est.Synthetic,
	}).Info("estimate produced")

	c.HTML(http.StatusOK, "result.html", gin.H{
		"Count":     int(math.Round(float64(est.Count))),
		"Heatmap":   heat,
		"Original":  original,
		"Filename":  name,
		"Synthetic": est.Synthetic,
	})
}

func engineLabel(est *inference.Estimate) string {
	if est.Synthetic {
		return string(inference.EngineSynthetic)
	}
	return string(inference.EngineONNX)
}
