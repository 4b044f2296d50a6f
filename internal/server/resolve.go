package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ResolveReferral is the public entry point for a shared referral URL. It
// validates the code and stores it in a cookie for attribution at checkout.
func (s *Server) ResolveReferral(c *gin.Context) {
	ctx := c.Request.Context()
	if allowed, retryAfter := s.resolveLimiter.Allow(ctx, c.ClientIP()); !allowed {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		AbortWithError(c, ErrTooManyRequests)
		return
	}

	resolution, err := s.referralSvc.Resolve(ctx, strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		s.cfg.ReferralCookieName,
		resolution.Link.Code,
		int(s.cfg.ReferralCookieTTL.Seconds()),
		"/",
		"",
		s.cfg.CookieSecure,
		true,
	)

	c.JSON(http.StatusOK, gin.H{"data": resolution})
}
