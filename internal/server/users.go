package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/internal/authorization"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
)

type createUserRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	ReferrerCode string `json:"referrer_code"`
	Password     string `json:"password"`
}

type setReferrerRequest struct {
	ReferrerID string `json:"referrer_id"`
}

type setBigBossRequest struct {
	Enabled            bool             `json:"enabled"`
	OverridePercentage *decimal.Decimal `json:"override_percentage"`
}

func (s *Server) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	p, _ := principalFromContext(c)
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == string(userdomain.RoleAdmin) && p.Role != authorization.RoleAdmin {
		AbortWithError(c, ErrForbidden)
		return
	}

	user, err := s.userSvc.Create(c.Request.Context(), userdomain.CreateUserRequest{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		Role:         role,
		ReferrerCode: strings.TrimSpace(req.ReferrerCode),
		Password:     req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) ListUsers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Role       string `form:"role"`
		IsBigBoss  string `form:"is_big_boss"`
		ReferredBy string `form:"referred_by"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	isBigBoss, err := parseOptionalBool(query.IsBigBoss)
	if err != nil {
		AbortWithError(c, newValidationError("is_big_boss", "invalid_is_big_boss", "invalid is_big_boss"))
		return
	}

	resp, err := s.userSvc.List(c.Request.Context(), userdomain.ListUserRequest{
		Pagination: query.Pagination,
		Role:       strings.TrimSpace(query.Role),
		IsBigBoss:  isBigBoss,
		ReferredBy: strings.TrimSpace(query.ReferredBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Users, "page_info": resp.PageInfo})
}

func (s *Server) GetUserByID(c *gin.Context) {
	user, err := s.userSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) SetUserReferrer(c *gin.Context) {
	var req setReferrerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.userSvc.SetReferrer(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.ReferrerID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) SetUserBigBoss(c *gin.Context) {
	var req setBigBossRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pct := decimal.Zero
	if req.OverridePercentage != nil {
		pct = *req.OverridePercentage
	}

	user, err := s.userSvc.SetBigBoss(c.Request.Context(), strings.TrimSpace(c.Param("id")), userdomain.SetBigBossRequest{
		Enabled:            req.Enabled,
		OverridePercentage: pct,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}
