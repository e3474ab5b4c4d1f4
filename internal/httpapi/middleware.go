package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	errx "github.com/logicshop-core/server/internal/core/error"
	"github.com/logicshop-core/server/internal/shop/model"
	logx "github.com/logicshop-core/server/pkg/logger"
	"golang.org/x/time/rate"
)

const userKey = "shop.user"

// requireSession resolves the session header and stores the user on the context.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.proc.Authenticate(c.Request.Context(), c.GetHeader(SessionHeader))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) model.User {
	v, _ := c.Get(userKey)
	u, _ := v.(model.User)
	return u
}

// rateLimit applies one token bucket to every request.
func rateLimit(rps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			abortWithError(c, errx.Reject(errx.KindRateLimited, nil))
			return
		}
		c.Next()
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logx.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errx.SystemErrorMessage})
	})
}

// abortWithError renders err as {"error": message} with its mapped status.
func abortWithError(c *gin.Context, err error) {
	appErr := errx.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.AbortWithStatusJSON(appErr.Status, gin.H{"error": appErr.Message})
}
