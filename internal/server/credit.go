package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
)

const defaultEntryLimit = 50

type creditPostRequest struct {
	Amount          int64                   `json:"amount"`
	SourceType      ledgerdomain.SourceType `json:"source_type"`
	SourceReference string                  `json:"source_reference"`
	Channel         ledgerdomain.Channel    `json:"channel"`
	Description     string                  `json:"description"`
	ExpiresAt       *int64                  `json:"expires_at"`
}

func (s *Server) GetCreditBalance(c *gin.Context) {
	memberID, err := parseSnowflakeParam(c, "memberId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ledgerSvc.Balance(c.Request.Context(), memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCreditEntries(c *gin.Context) {
	memberID, err := parseSnowflakeParam(c, "memberId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit, err := parseLimitQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if limit == 0 {
		limit = defaultEntryLimit
	}

	resp, err := s.ledgerSvc.Entries(c.Request.Context(), memberID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddCredit(c *gin.Context) {
	s.postCredit(c, ledgerdomain.EventTypeCredit)
}

func (s *Server) DeductCredit(c *gin.Context) {
	s.postCredit(c, ledgerdomain.EventTypeDebit)
}

// postCredit is the shared manual posting path. The caller always sends a
// positive amount; the event type decides the sign on the ledger entry.
// Manual postings get a fresh source id so repeated staff actions are
// distinct events rather than duplicate-source rejections.
func (s *Server) postCredit(c *gin.Context, eventType ledgerdomain.EventType) {
	memberID, err := parseSnowflakeParam(c, "memberId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req creditPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if req.Amount <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	}

	amount := req.Amount
	if eventType == ledgerdomain.EventTypeDebit {
		amount = -amount
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = ledgerdomain.SourceTypeManual
	}

	var expiresAt *int64
	if req.ExpiresAt != nil {
		if *req.ExpiresAt <= time.Now().Unix() {
			AbortWithError(c, newValidationError("expires_at", "invalid_expires_at", "expiry must be in the future"))
			return
		}
		expiresAt = req.ExpiresAt
	}

	resp, err := s.ledgerSvc.Post(c.Request.Context(), ledgerdomain.PostRequest{
		MemberID:        memberID,
		EventType:       eventType,
		Amount:          amount,
		SourceType:      sourceType,
		SourceID:        s.genID.Generate(),
		SourceReference: strings.TrimSpace(req.SourceReference),
		Channel:         req.Channel,
		Description:     req.Description,
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReconcileCredit(c *gin.Context) {
	memberID, err := parseSnowflakeParam(c, "memberId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ledgerSvc.Reconcile(c.Request.Context(), memberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
