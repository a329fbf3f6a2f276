package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	tradeindomain "github.com/smallbiznis/meridian/internal/tradein/domain"
)

type completeTradeInRequest struct {
	CreditType tradeindomain.CreditType `json:"credit_type"`
}

type calculatePayoutRequest struct {
	Tier  string                   `json:"tier"`
	Items []tradeindomain.ItemInput `json:"items"`
}

func (s *Server) ListTradeIns(c *gin.Context) {
	memberID, err := parseOptionalSnowflakeID(c.Query("member_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseLimitQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filter := tradeindomain.ListFilter{
		MemberID: memberID,
		Status:   tradeindomain.Status(strings.TrimSpace(c.Query("status"))),
		Limit:    limit,
	}

	resp, err := s.tradeInSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTradeInByID(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.tradeInSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateTradeIn(c *gin.Context) {
	var req tradeindomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tradeInSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddTradeInItem(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var item tradeindomain.ItemInput
	if err := c.ShouldBindJSON(&item); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tradeInSvc.AddItem(c.Request.Context(), id, item)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateTradeInItem(c *gin.Context) {
	id, itemID, err := s.tradeInItemIDs(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var item tradeindomain.ItemInput
	if err := c.ShouldBindJSON(&item); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tradeInSvc.UpdateItem(c.Request.Context(), id, itemID, item)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveTradeInItem(c *gin.Context) {
	id, itemID, err := s.tradeInItemIDs(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.tradeInSvc.RemoveItem(c.Request.Context(), id, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SubmitTradeIn(c *gin.Context) {
	s.transitionTradeIn(c, s.tradeInSvc.Submit)
}

func (s *Server) ApproveTradeIn(c *gin.Context) {
	s.transitionTradeIn(c, s.tradeInSvc.Approve)
}

func (s *Server) RejectTradeIn(c *gin.Context) {
	s.transitionTradeIn(c, s.tradeInSvc.Reject)
}

func (s *Server) CancelTradeIn(c *gin.Context) {
	s.transitionTradeIn(c, s.tradeInSvc.Cancel)
}

func (s *Server) CompleteTradeIn(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req completeTradeInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tradeInSvc.Complete(c.Request.Context(), id, req.CreditType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AdjustTradeIn(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req tradeindomain.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tradeInSvc.Adjust(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// CalculateTradeInPayout previews a valuation without creating anything.
// Staff use it at the counter before the customer commits.
func (s *Server) CalculateTradeInPayout(c *gin.Context) {
	var req calculatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tradeInSvc.CalculatePayout(c.Request.Context(), req.Tier, req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) transitionTradeIn(c *gin.Context, fn func(ctx context.Context, id snowflake.ID) (*tradeindomain.TradeIn, error)) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := fn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) tradeInItemIDs(c *gin.Context) (snowflake.ID, snowflake.ID, error) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		return 0, 0, err
	}
	itemID, err := parseSnowflakeParam(c, "itemId")
	if err != nil {
		return 0, 0, err
	}
	return id, itemID, nil
}
