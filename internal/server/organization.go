package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetOrganization(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	org, err := s.organizationSvc.GetByID(c.Request.Context(), p.OrgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}
