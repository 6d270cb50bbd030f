package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/util"
)

func (s *Server) getBalance(c *gin.Context) {
	c.JSON(http.StatusOK, s.market.GetBalance(accountOf(c).Id))
}

func (s *Server) deposit(c *gin.Context) {
	var req models.DepositReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	out, err := s.market.Deposit(accountOf(c).Id, req)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) billingHistory(c *gin.Context) {
	var q models.DateRangeReq
	if err := c.ShouldBindQuery(&q); err != nil {
		util.AbortWithError(c, models.ErrInvalidRequest("Invalid query: "+err.Error()))
		return
	}
	out, err := s.market.BillingHistory(accountOf(c).Id, q)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) getInvoice(c *gin.Context) {
	inv, err := s.market.GetInvoice(accountOf(c).Id, c.Param("id"))
	util.Respond(c, http.StatusOK, inv, err)
}

func (s *Server) setPaymentMethod(c *gin.Context) {
	var req models.PaymentMethodReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	pm, err := s.market.SetPaymentMethod(accountOf(c).Id, req)
	util.Respond(c, http.StatusOK, pm, err)
}

func (s *Server) createAccount(c *gin.Context) {
	var req models.CreateAccountReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	creds, err := s.market.CreateAccount(req)
	util.Respond(c, http.StatusCreated, creds, err)
}

func (s *Server) listAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, s.market.ListAccounts())
}
