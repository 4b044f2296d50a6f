package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/internal/authorization"
	referraldomain "github.com/smallbiznis/nodeboss/internal/referral/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
)

type createLinkRequest struct {
	OwnerUserID          string           `json:"owner_user_id"`
	TargetType           string           `json:"target_type"`
	TargetID             string           `json:"target_id"`
	CommissionPercentage *decimal.Decimal `json:"commission_percentage"`
}

type setLinkStatusRequest struct {
	Status string `json:"status"`
}

type updateLinkPercentageRequest struct {
	CommissionPercentage *decimal.Decimal `json:"commission_percentage"`
}

// CreateLink creates a referral link. Members may only create links they
// own and cannot pick their own rate.
func (s *Server) CreateLink(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	owner, err := s.scopeUserID(c, authorization.ObjectReferralLink, authorization.ActionReferralLinkViewAll, strings.TrimSpace(req.OwnerUserID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if owner == "" {
		AbortWithError(c, newValidationError("owner_user_id", "required", "owner_user_id is required"))
		return
	}
	pct := req.CommissionPercentage
	if !s.canViewAll(c, authorization.ObjectReferralLink, authorization.ActionReferralLinkUpdate) {
		pct = nil
	}

	link, err := s.referralSvc.Create(c.Request.Context(), referraldomain.CreateLinkRequest{
		OwnerUserID:          owner,
		TargetType:           strings.TrimSpace(req.TargetType),
		TargetID:             strings.TrimSpace(req.TargetID),
		CommissionPercentage: pct,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": link})
}

func (s *Server) ListLinks(c *gin.Context) {
	var query struct {
		pagination.Pagination
		OwnerUserID string `form:"owner_user_id"`
		Status      string `form:"status"`
		TargetType  string `form:"target_type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	owner, err := s.scopeUserID(c, authorization.ObjectReferralLink, authorization.ActionReferralLinkViewAll, strings.TrimSpace(query.OwnerUserID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.referralSvc.List(c.Request.Context(), referraldomain.ListLinkRequest{
		Pagination:  query.Pagination,
		OwnerUserID: owner,
		Status:      strings.TrimSpace(query.Status),
		TargetType:  strings.TrimSpace(query.TargetType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Links, "page_info": resp.PageInfo})
}

func (s *Server) GetLinkByID(c *gin.Context) {
	link, err := s.visibleLink(c, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": link})
}

func (s *Server) SetLinkStatus(c *gin.Context) {
	var req setLinkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	link, err := s.referralSvc.SetStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": link})
}

func (s *Server) UpdateLinkPercentage(c *gin.Context) {
	var req updateLinkPercentageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.CommissionPercentage == nil {
		AbortWithError(c, newValidationError("commission_percentage", "required", "commission_percentage is required"))
		return
	}

	link, err := s.referralSvc.UpdatePercentage(c.Request.Context(), strings.TrimSpace(c.Param("id")), *req.CommissionPercentage)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": link})
}

// visibleLink loads a link the caller may read. A link owned by someone
// else reads as not found for callers limited to their own links.
func (s *Server) visibleLink(c *gin.Context, id string) (*referraldomain.ReferralLink, error) {
	link, err := s.referralSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if s.canViewAll(c, authorization.ObjectReferralLink, authorization.ActionReferralLinkViewAll) {
		return link, nil
	}
	p, ok := principalFromContext(c)
	if !ok {
		return nil, ErrUnauthorized
	}
	if link.OwnerUserID != p.UserID {
		return nil, referraldomain.ErrNotFound
	}
	return link, nil
}
