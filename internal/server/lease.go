package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"leasecheck/internal/pipeline"
	"leasecheck/internal/preview"
)

const userIDHeader = "X-User-ID"

// requestUser returns the caller from the query, the form or the header.
func requestUser(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("user_id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.PostForm("user_id")); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(userIDHeader))
}

// previewUser identifies an anonymous preview caller by address.
func previewUser(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(userIDHeader)); id != "" {
		return id
	}
	return "ip_" + c.ClientIP()
}

func (s *Server) analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "Invalid upload. Please send the lease pages as multipart field \"files\".")
		return
	}

	userID := requestUser(c)
	if userID == "" {
		badRequest(c, "user_id is required")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}

	dir, err := os.MkdirTemp(s.config.UploadDir, "leasecheck-*")
	if err != nil {
		s.writeError(c, fmt.Errorf("create upload dir: %w", err))
		return
	}
	defer os.RemoveAll(dir)

	pages := make([]pipeline.Page, 0, len(files))
	for i, fh := range files {
		path := filepath.Join(dir, fmt.Sprintf("page-%03d%s", i, strings.ToLower(filepath.Ext(fh.Filename))))
		if err := c.SaveUploadedFile(fh, path); err != nil {
			s.writeError(c, fmt.Errorf("save upload %q: %w", fh.Filename, err))
			return
		}
		pages = append(pages, pipeline.Page{Name: filepath.Base(fh.Filename), Path: path})
	}

	rec, err := s.deps.Coordinator.Analyze(c.Request.Context(), pages, userID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec.Report(true)})
}

func (s *Server) fullReport(c *gin.Context) {
	analysisID := c.Param("id")
	if analysisID == "" {
		analysisID = c.Query("analysis_id")
	}
	userID := requestUser(c)
	if analysisID == "" || userID == "" {
		badRequest(c, "analysis_id and user_id are required")
		return
	}

	report, err := s.deps.Coordinator.Report(c.Request.Context(), analysisID, userID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

func (s *Server) accessStatus(c *gin.Context) {
	userID := requestUser(c)
	if userID == "" {
		badRequest(c, "user_id is required")
		return
	}

	st, err := s.deps.Gate.Status(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":                     true,
		"is_logged_in":                st.IsLoggedIn,
		"has_free_analysis_available": st.HasFreeAnalysisAvailable,
		"has_active_plan":             st.HasActivePlan,
		"remaining_analyses":          st.RemainingAnalyses,
		"analyses_count":              st.AnalysesCount,
		"reason":                      st.Reason,
		"message":                     st.Message,
	})
}

type quickAnalyzeRequest struct {
	ClauseText string `json:"clause_text"`
}

func (s *Server) quickAnalyze(c *gin.Context) {
	var req quickAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	result, remaining, err := s.deps.Preview.Analyze(c.Request.Context(), req.ClauseText, previewUser(c), c.ClientIP())
	switch {
	case errors.Is(err, preview.ErrEmptyClause):
		badRequest(c, fmt.Sprintf("Please paste only one short clause (max %d characters) for the free preview.", s.deps.Preview.MaxChars()))
		return
	case errors.Is(err, preview.ErrClauseTooLong):
		badRequest(c, fmt.Sprintf("This quick check is only for short clauses. Please paste a shorter sentence (up to %d characters).", s.deps.Preview.MaxChars()))
		return
	case err != nil:
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":               true,
		"remaining_quota_today": remaining,
		"result":                result,
	})
}

func (s *Server) quickHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": s.deps.Preview.History(previewUser(c)),
	})
}
