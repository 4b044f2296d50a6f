package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/nodeboss/internal/authorization"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
)

type createAdjustmentRequest struct {
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	RelatedSaleID string `json:"related_sale_id"`
	Description   string `json:"description"`
}

func (s *Server) ListCommissions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		UserID         string `form:"user_id"`
		ReferralLinkID string `form:"referral_link_id"`
		RelatedSaleID  string `form:"related_sale_id"`
		Source         string `form:"source"`
		StartAt        string `form:"start_at"`
		EndAt          string `form:"end_at"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := s.scopeUserID(c, authorization.ObjectCommission, authorization.ActionCommissionViewAll, strings.TrimSpace(query.UserID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	startAt, endAt, err := parseTimeRange(query.StartAt, query.EndAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.commissionSvc.List(c.Request.Context(), commissiondomain.ListCommissionRequest{
		Pagination:     query.Pagination,
		UserID:         userID,
		ReferralLinkID: strings.TrimSpace(query.ReferralLinkID),
		RelatedSaleID:  strings.TrimSpace(query.RelatedSaleID),
		Source:         strings.TrimSpace(query.Source),
		StartAt:        startAt,
		EndAt:          endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Transactions, "page_info": resp.PageInfo})
}

func (s *Server) GetCommissionByID(c *gin.Context) {
	txn, err := s.commissionSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.canViewAll(c, authorization.ObjectCommission, authorization.ActionCommissionViewAll) {
		p, ok := principalFromContext(c)
		if !ok || txn.UserID != p.UserID {
			AbortWithError(c, commissiondomain.ErrNotFound)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) CreateAdjustment(c *gin.Context) {
	var req createAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	txn, err := s.commissionSvc.CreateAdjustment(c.Request.Context(), commissiondomain.CreateAdjustmentRequest{
		UserID:        strings.TrimSpace(req.UserID),
		Amount:        req.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		RelatedSaleID: strings.TrimSpace(req.RelatedSaleID),
		Description:   strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": txn})
}
