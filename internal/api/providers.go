package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/util"
)

func (s *Server) searchProviders(c *gin.Context) {
	var q models.ProviderSearch
	if err := c.ShouldBindQuery(&q); err != nil {
		util.AbortWithError(c, models.ErrInvalidRequest("Invalid query: "+err.Error()))
		return
	}
	if v := c.Query("max_price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			util.AbortWithError(c, models.ErrInvalidRequest("max_price must be a decimal"))
			return
		}
		q.MaxPrice = price
	}
	c.JSON(http.StatusOK, s.market.SearchProviders(q))
}

func (s *Server) getProvider(c *gin.Context) {
	p, err := s.market.GetProvider(c.Param("id"))
	util.Respond(c, http.StatusOK, p, err)
}

func (s *Server) createResource(c *gin.Context) {
	var req models.CreateResourceReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	r, err := s.market.CreateResource(c.Param("id"), req)
	util.Respond(c, http.StatusCreated, r, err)
}

func (s *Server) listResources(c *gin.Context) {
	list, err := s.market.ListResources(c.Param("id"), c.Query("type"), c.Query("status"))
	util.Respond(c, http.StatusOK, list, err)
}

func (s *Server) getResource(c *gin.Context) {
	r, err := s.market.GetResource(c.Param("id"), c.Param("rid"))
	util.Respond(c, http.StatusOK, r, err)
}

func (s *Server) updateResource(c *gin.Context) {
	var req models.UpdateResourceReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	r, err := s.market.UpdateResource(c.Param("id"), c.Param("rid"), req)
	util.Respond(c, http.StatusOK, r, err)
}

func (s *Server) deleteResource(c *gin.Context) {
	r, err := s.market.DeleteResource(c.Param("id"), c.Param("rid"))
	util.Respond(c, http.StatusOK, r, err)
}

func (s *Server) availableTasks(c *gin.Context) {
	out, err := s.market.AvailableTasks(c.Param("id"))
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) acceptTask(c *gin.Context) {
	var req models.AcceptTaskReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	t, err := s.market.AcceptTask(c.Param("id"), req)
	util.Respond(c, http.StatusOK, t, err)
}

func (s *Server) startTask(c *gin.Context) {
	var req models.StartTaskReq
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			util.AbortWithError(c, err)
			return
		}
	}
	t, err := s.market.StartTask(c.Param("id"), c.Param("tid"), req)
	util.Respond(c, http.StatusOK, t, err)
}

func (s *Server) updateProgress(c *gin.Context) {
	var req models.ProgressReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	t, err := s.market.UpdateProgress(c.Param("id"), c.Param("tid"), req)
	util.Respond(c, http.StatusOK, t, err)
}

func (s *Server) appendLogs(c *gin.Context) {
	var req models.AppendLogsReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	out, err := s.market.AppendLogs(c.Param("id"), c.Param("tid"), req)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) completeTask(c *gin.Context) {
	var req models.CompleteTaskReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	out, err := s.market.CompleteTask(c.Param("id"), c.Param("tid"), req)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) failTask(c *gin.Context) {
	var req models.FailTaskReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	t, err := s.market.FailTask(c.Param("id"), c.Param("tid"), req)
	util.Respond(c, http.StatusOK, t, err)
}

func (s *Server) earnings(c *gin.Context) {
	var q models.DateRangeReq
	if err := c.ShouldBindQuery(&q); err != nil {
		util.AbortWithError(c, models.ErrInvalidRequest("Invalid query: "+err.Error()))
		return
	}
	out, err := s.market.Earnings(c.Param("id"), q)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) requestPayout(c *gin.Context) {
	var req models.PayoutReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	p, err := s.market.RequestPayout(c.Param("id"), req)
	util.Respond(c, http.StatusOK, p, err)
}

func (s *Server) payoutHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		util.AbortWithError(c, err)
		return
	}
	out, err := s.market.PayoutHistory(c.Param("id"), limit)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) pendingPayouts(c *gin.Context) {
	out, err := s.market.PendingPayouts(c.Param("id"))
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) stakingStatus(c *gin.Context) {
	out, err := s.market.StakingStatus(c.Param("id"))
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) stake(c *gin.Context) {
	var req models.StakeReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	out, err := s.market.Stake(c.Param("id"), req)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) unstake(c *gin.Context) {
	var req models.StakeReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	out, err := s.market.Unstake(c.Param("id"), req)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) providerStatus(c *gin.Context) {
	out, err := s.market.ProviderStatus(c.Param("id"))
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) heartbeat(c *gin.Context) {
	var req models.HeartbeatReq
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			util.AbortWithError(c, err)
			return
		}
	}
	out, err := s.market.Heartbeat(c.Param("id"), req)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) providerMetrics(c *gin.Context) {
	out, err := s.market.ProviderMetrics(c.Param("id"), c.Query("period"))
	util.Respond(c, http.StatusOK, out, err)
}
