package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/meridian/internal/checkout/domain"
)

// CheckoutRateLimit throttles discount requests per client IP. When Redis is
// not configured the limiter is disabled and every request passes.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		result, err := s.limiter.AllowCheckout(c.Request.Context(), c.ClientIP())
		if err != nil {
			// A broken limiter must not block checkout.
			c.Next()
			return
		}
		if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "checkout_discount", "bucket_empty")
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), "checkout_discount")
		c.Next()
	}
}

// CheckoutDiscount evaluates the cart against tier discounts and active
// promotions. The response always carries the fixed discount payload shape;
// anything unusable about the input produces the empty payload, not an error.
func (s *Server) CheckoutDiscount(c *gin.Context) {
	var input checkoutdomain.DiscountInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusOK, checkoutdomain.Empty())
		return
	}

	c.JSON(http.StatusOK, s.checkoutSvc.Discount(c.Request.Context(), input))
}
