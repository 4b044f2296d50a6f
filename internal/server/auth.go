package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	authdomain "github.com/smallbiznis/nodeboss/internal/auth/domain"
	orgdomain "github.com/smallbiznis/nodeboss/internal/organization/domain"
)

type LoginRequest struct {
	OrgID    string `json:"org_id"`
	OrgSlug  string `json:"org"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token. The organization may be
// named by id or slug; without either the default organization is used.
func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	org, err := s.loginOrganization(c, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if org == nil {
		AbortWithError(c, authdomain.ErrInvalidCredentials)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	result, err := s.authsvc.Login(ctx, authdomain.LoginRequest{
		OrgID:    org.ID.String(),
		Email:    email,
		Password: req.Password,
	})
	if err != nil {
		if s.auditSvc != nil {
			_ = s.auditSvc.Record(ctx, auditdomain.Entry{
				OrgID:      org.ID,
				ActorType:  auditdomain.ActorTypeUser,
				Action:     auditdomain.ActionUserLoginFailed,
				TargetType: auditdomain.TargetUser,
				Metadata:   map[string]any{"email": email},
			})
		}
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.Record(ctx, auditdomain.Entry{
			OrgID:      org.ID,
			ActorType:  auditdomain.ActorTypeUser,
			ActorID:    result.UserID,
			Action:     auditdomain.ActionUserLogin,
			TargetType: auditdomain.TargetUser,
			TargetID:   result.UserID,
			Metadata:   map[string]any{"email": email},
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) loginOrganization(c *gin.Context, req LoginRequest) (*orgdomain.Organization, error) {
	ctx := c.Request.Context()
	if id := strings.TrimSpace(req.OrgID); id != "" {
		orgID, err := snowflake.ParseString(id)
		if err != nil || orgID == 0 {
			return nil, authdomain.ErrInvalidCredentials
		}
		return s.orgRepo.FindByID(ctx, orgID)
	}
	if slug := strings.ToLower(strings.TrimSpace(req.OrgSlug)); slug != "" {
		return s.orgRepo.FindBySlug(ctx, slug)
	}
	return s.orgRepo.FindDefault(ctx)
}

// Me returns the caller's own user record.
func (s *Server) Me(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.userSvc.GetByID(c.Request.Context(), p.UserID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}
