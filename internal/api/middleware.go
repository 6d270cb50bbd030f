package api

import (
	"crypto/subtle"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/metrics"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/util"
	"github.com/robocompute/go-robocompute/wallet"
)

const ctxAccount = "rc.account"

func bearerToken(c *gin.Context) string {
	h := c.GetHeader(constants.HeaderAuthorization)
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func accountOf(c *gin.Context) *models.Account {
	v, ok := c.Get(ctxAccount)
	if !ok {
		return nil
	}
	return v.(*models.Account)
}

// authenticate resolves the api key to its account.
func (s *Server) authenticate(c *gin.Context) {
	key := bearerToken(c)
	if key == "" {
		util.AbortWithError(c, models.ErrAuthentication("Missing API key"))
		return
	}
	acct, err := s.market.Authenticate(key)
	if err != nil {
		util.AbortWithError(c, err)
		return
	}
	c.Set(ctxAccount, acct)
	c.Next()
}

// rateLimit charges one request to the caller's quota and reports it in the
// X-RateLimit headers.
func (s *Server) rateLimit(c *gin.Context) {
	if s.limiter == nil {
		c.Next()
		return
	}
	acct := accountOf(c)
	d, err := s.limiter.Take(c.Request.Context(), acct.Id)
	if err != nil {
		// the limiter store is unreachable: serve the request unmetered
		c.Next()
		return
	}
	c.Header(constants.HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	c.Header(constants.HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	c.Header(constants.HeaderRateLimitReset, strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		metrics.RateLimited.Inc()
		util.AbortWithError(c, models.ErrRateLimit(d.RetryAfter()))
		return
	}
	c.Next()
}

// verifySignature checks X-Wallet-Signature over METHOD + endpoint + X-Timestamp.
// Requests without a signature pass unless signatures are required.
func (s *Server) verifySignature(c *gin.Context) {
	sig := c.GetHeader(constants.HeaderWalletSignature)
	if sig == "" && !s.cfg.RequireSignature {
		c.Next()
		return
	}
	if sig == "" {
		util.AbortWithError(c, models.ErrWalletSignature("Missing wallet signature"))
		return
	}
	ts, err := strconv.ParseInt(c.GetHeader(constants.HeaderTimestamp), 10, 64)
	if err != nil {
		util.AbortWithError(c, models.ErrWalletSignature("Missing or invalid timestamp"))
		return
	}
	if skew := s.cfg.TimestampSkew; skew > 0 {
		if math.Abs(float64(s.now().Unix()-ts)) > skew.Seconds() {
			util.AbortWithError(c, models.ErrWalletSignature("Timestamp outside the allowed window"))
			return
		}
	}
	acct := accountOf(c)
	if acct.WalletAddress == "" {
		util.AbortWithError(c, models.ErrWalletSignature("Account has no wallet address"))
		return
	}
	endpoint := strings.TrimPrefix(c.Request.URL.Path, constants.ApiVersionPath)
	msg := wallet.SignatureMessage(c.Request.Method, endpoint, ts)
	if err := wallet.VerifySignature(acct.WalletAddress, sig, []byte(msg)); err != nil {
		util.AbortWithError(c, models.ErrWalletSignature("Wallet signature invalid"))
		return
	}
	c.Next()
}

// ownProvider restricts /providers/:id routes to the provider's own key.
func (s *Server) ownProvider(c *gin.Context) {
	acct := accountOf(c)
	if acct.Role != models.RoleProvider || acct.ProviderId != c.Param("id") {
		util.AbortWithError(c, models.ErrForbidden("API key does not belong to this provider"))
		return
	}
	c.Next()
}

func (s *Server) adminOnly(c *gin.Context) {
	token := bearerToken(c)
	if s.cfg.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
		util.AbortWithError(c, models.ErrAuthentication("Invalid admin token"))
		return
	}
	c.Next()
}

func (s *Server) now() time.Time {
	if s.cfg.Now != nil {
		return s.cfg.Now()
	}
	return time.Now()
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, models.ErrInvalidRequest(name + " must be a non-negative integer")
	}
	return n, nil
}

func bindJSON(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return models.ErrInvalidRequest("Invalid request body: " + err.Error())
	}
	return nil
}

func noRoute(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, models.ErrorEnvelope{Error: models.ErrNotFound("route", c.Request.URL.Path)})
}
