package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	commissiondomain "github.com/smallbiznis/nodeboss/internal/commission/domain"
	saledomain "github.com/smallbiznis/nodeboss/internal/sale/domain"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
)

type saleRequest struct {
	ReferralCode          string `json:"referral_code"`
	ReferralLinkID        string `json:"referral_link_id"`
	BuyerID               string `json:"buyer_id"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
	ExternalTransactionID string `json:"external_transaction_id"`
}

func (r saleRequest) toDomain() saledomain.SaleRequest {
	return saledomain.SaleRequest{
		ReferralCode:          strings.TrimSpace(r.ReferralCode),
		ReferralLinkID:        strings.TrimSpace(r.ReferralLinkID),
		BuyerUserID:           strings.TrimSpace(r.BuyerID),
		Amount:                r.Amount,
		Currency:              strings.ToUpper(strings.TrimSpace(r.Currency)),
		ExternalTransactionID: strings.TrimSpace(r.ExternalTransactionID),
	}
}

func (s *Server) CreatePendingSale(c *gin.Context) {
	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sale, err := s.saleSvc.CreatePending(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": sale})
}

// CompleteSale records a payment confirmation entered by an operator. A sale
// that was already completed is acknowledged with its stored state.
func (s *Server) CompleteSale(c *gin.Context) {
	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.saleSvc.Complete(c.Request.Context(), req.toDomain())
	duplicate := errors.Is(err, commissiondomain.ErrDuplicateTransaction)
	if err != nil && !duplicate {
		AbortWithError(c, err)
		return
	}

	var sale *saledomain.Sale
	if result != nil {
		sale = result.Sale
	}
	c.JSON(http.StatusOK, gin.H{"data": sale, "duplicate": duplicate})
}

func (s *Server) FailSale(c *gin.Context) {
	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sale, err := s.saleSvc.Fail(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sale})
}

func (s *Server) CancelSale(c *gin.Context) {
	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sale, err := s.saleSvc.Cancel(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sale})
}

func (s *Server) ListSales(c *gin.Context) {
	var query struct {
		pagination.Pagination
		ReferralLinkID string `form:"referral_link_id"`
		BuyerID        string `form:"buyer_id"`
		Status         string `form:"status"`
		StartAt        string `form:"start_at"`
		EndAt          string `form:"end_at"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startAt, endAt, err := parseTimeRange(query.StartAt, query.EndAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.saleSvc.List(c.Request.Context(), saledomain.ListSaleRequest{
		Pagination:     query.Pagination,
		ReferralLinkID: strings.TrimSpace(query.ReferralLinkID),
		BuyerUserID:    strings.TrimSpace(query.BuyerID),
		Status:         strings.ToLower(strings.TrimSpace(query.Status)),
		StartAt:        startAt,
		EndAt:          endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Sales, "page_info": resp.PageInfo})
}

func (s *Server) GetSaleByID(c *gin.Context) {
	sale, err := s.saleSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sale})
}
