package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nodeboss/internal/authorization"
)

func (s *Server) GetLinkReport(c *gin.Context) {
	link, err := s.visibleLink(c, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.reportingSvc.LinkSummary(c.Request.Context(), link.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetUserReport(c *gin.Context) {
	userID, err := s.scopeUserID(c, authorization.ObjectReport, authorization.ActionReportViewAll, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.reportingSvc.UserSummary(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetUserStatement(c *gin.Context) {
	userID, err := s.scopeUserID(c, authorization.ObjectReport, authorization.ActionReportViewAll, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.reportingSvc.Statement(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s.pdf"`, userID))
	c.Data(http.StatusOK, "application/pdf", doc)
}
