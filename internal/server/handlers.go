package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/newsflow/internal/ingest"
)

func (s *Server) health(c *gin.Context) {
	st := s.runner.Status()

	code := http.StatusOK
	status := "ok"
	if st.Error != "" {
		code = http.StatusServiceUnavailable
		status = "error"
	}

	resp := gin.H{
		"status":     status,
		"running":    st.Running,
		"last_error": st.Error,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if st.FinishedAt != nil {
		resp["last_run"] = st.FinishedAt.Format(time.RFC3339)
	}
	c.JSON(code, resp)
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Status())
}

func (s *Server) run(c *gin.Context) {
	mode, err := ingest.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.runner.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": ingest.ErrRunInProgress.Error()})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.runner.Run(s.baseCtx, mode); err != nil {
			if errors.Is(err, ingest.ErrRunInProgress) {
				s.logger.Warn("triggered run skipped, another run started first")
				return
			}
			s.logger.Error("triggered run failed", "mode", mode, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started", "mode": mode})
}
