package app

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/abhi007singh/legendary-sniffle/app/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server carries the dependencies of the public API handlers.
type Server struct {
	Ingestor       *Ingestor
	Reconciler     *Reconciler
	MaxUploadBytes int64
	Log            zerolog.Logger
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Upload accepts a CSV in form field "file" and answers with the batch id.
func (s *Server) Upload(c *gin.Context) {
	if s.MaxUploadBytes > 0 {
		// room for the multipart envelope
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxUploadBytes+(1<<20))
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file uploaded", "error": err.Error()})
		return
	}
	if !isCSV(fh.Filename, fh.Header.Get("Content-Type")) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Only CSV files are allowed"})
		return
	}
	if s.MaxUploadBytes > 0 && fh.Size > s.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": fmt.Sprintf("File exceeds %d bytes", s.MaxUploadBytes)})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error", "error": err.Error()})
		return
	}
	defer f.Close()

	batchID, err := s.Ingestor.Ingest(c.Request.Context(), f)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": "Invalid CSV",
				"error":   ve.Error(),
				"line":    ve.Line,
				"field":   ve.Field,
			})
			return
		}
		s.Log.Error().Err(err).Str("batch_id", batchID).Str("file", fh.Filename).Msg("upload failed")
		body := gin.H{"message": "Server Error", "error": err.Error()}
		if batchID != "" {
			// rows are stored, only dispatch failed
			body["data"] = models.UploadData{ReferenceID: batchID}
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}

	c.JSON(http.StatusOK, models.UploadResponse{
		Message: "CSV data saved to DB",
		Data:    models.UploadData{ReferenceID: batchID},
	})
}

func isCSV(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(contentType), "text/csv")
}

// Status returns the per-row list while a batch is in flight and the CSV
// export once every row is completed.
func (s *Server) Status(c *gin.Context) {
	batchID := c.Param("batchId")

	st, err := s.Reconciler.Status(c.Request.Context(), batchID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "No record in DB."})
		return
	}
	if err != nil {
		s.Log.Error().Err(err).Str("batch_id", batchID).Msg("status lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error", "error": err.Error()})
		return
	}

	if !st.Complete() {
		c.JSON(http.StatusOK, models.StatusResponse{
			Message: "Processing status",
			State:   st.State,
			Data:    st.Rows,
		})
		return
	}

	path, cleanup, err := WriteExportFile(st.Export)
	defer cleanup()
	if err != nil {
		s.Log.Error().Err(err).Str("batch_id", batchID).Msg("export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error", "error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.FileAttachment(path, "output.csv")
}
