package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	bulkcreditdomain "github.com/smallbiznis/meridian/internal/bulkcredit/domain"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/meridian/internal/member/domain"
	promotiondomain "github.com/smallbiznis/meridian/internal/promotion/domain"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	tradeindomain "github.com/smallbiznis/meridian/internal/tradein/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isReferenceValidationError(err),
		isMemberValidationError(err),
		isLedgerValidationError(err),
		isTradeInValidationError(err),
		isPromotionValidationError(err),
		isBulkCreditValidationError(err):
		return true
	default:
		return false
	}
}

func isReferenceValidationError(err error) bool {
	switch err {
	case referencedomain.ErrInvalidName,
		referencedomain.ErrInvalidPct,
		referencedomain.ErrInvalidModifier,
		referencedomain.ErrInvalidThreshold,
		referencedomain.ErrInvalidID:
		return true
	default:
		return false
	}
}

func isMemberValidationError(err error) bool {
	switch err {
	case memberdomain.ErrInvalidEmail,
		memberdomain.ErrInvalidTier,
		memberdomain.ErrInvalidID:
		return true
	default:
		return false
	}
}

func isLedgerValidationError(err error) bool {
	switch err {
	case ledgerdomain.ErrInvalidMember,
		ledgerdomain.ErrInvalidAmount,
		ledgerdomain.ErrInvalidEventType,
		ledgerdomain.ErrInvalidSourceType,
		ledgerdomain.ErrInvalidSourceID,
		ledgerdomain.ErrMissingDescription:
		return true
	default:
		return false
	}
}

func isTradeInValidationError(err error) bool {
	switch err {
	case tradeindomain.ErrInvalidID,
		tradeindomain.ErrInvalidMember,
		tradeindomain.ErrInvalidQuantity,
		tradeindomain.ErrInvalidMarketValue,
		tradeindomain.ErrUnknownCategory,
		tradeindomain.ErrUnknownCondition,
		tradeindomain.ErrUnknownTier,
		tradeindomain.ErrEmptyItems,
		tradeindomain.ErrInvalidCreditType,
		tradeindomain.ErrMissingReason:
		return true
	default:
		return false
	}
}

func isPromotionValidationError(err error) bool {
	switch err {
	case promotiondomain.ErrInvalidID,
		promotiondomain.ErrInvalidName,
		promotiondomain.ErrInvalidPromoType,
		promotiondomain.ErrInvalidChannel,
		promotiondomain.ErrInvalidWindow,
		promotiondomain.ErrInvalidValue:
		return true
	default:
		return false
	}
}

func isBulkCreditValidationError(err error) bool {
	switch err {
	case bulkcreditdomain.ErrInvalidID,
		bulkcreditdomain.ErrInvalidAmount:
		return true
	default:
		return false
	}
}

// isConflictError covers state machine violations and double-spend guards:
// the request was well formed but the resource cannot take it right now.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, referencedomain.ErrTierExists),
		errors.Is(err, memberdomain.ErrMemberExists),
		errors.Is(err, ledgerdomain.ErrInsufficientBalance),
		errors.Is(err, ledgerdomain.ErrDuplicateSource),
		errors.Is(err, ledgerdomain.ErrBalanceMismatch),
		errors.Is(err, tradeindomain.ErrNotEditable),
		errors.Is(err, tradeindomain.ErrInvalidTransition),
		errors.Is(err, tradeindomain.ErrAlreadyCompleted),
		errors.Is(err, promotiondomain.ErrUsageExhausted),
		errors.Is(err, bulkcreditdomain.ErrLocked),
		errors.Is(err, bulkcreditdomain.ErrNotRetryable):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, referencedomain.ErrNotFound),
		errors.Is(err, memberdomain.ErrNotFound),
		errors.Is(err, tradeindomain.ErrNotFound),
		errors.Is(err, tradeindomain.ErrItemNotFound),
		errors.Is(err, promotiondomain.ErrNotFound),
		errors.Is(err, bulkcreditdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	for _, prefix := range []string{"invalid_", "unknown_", "missing_", "empty_"} {
		if strings.HasPrefix(code, prefix) {
			return strings.TrimPrefix(code, prefix)
		}
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger a coarse error type and a
// stable machine code without re-deriving the HTTP mapping by hand.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if payload.Type == "validation_error" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
