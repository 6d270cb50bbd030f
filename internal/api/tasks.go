package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/util"
)

func (s *Server) submitTask(c *gin.Context) {
	var req models.CreateTaskReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	sub, err := s.market.SubmitTask(accountOf(c).Id, req)
	util.Respond(c, http.StatusCreated, sub, err)
}

func (s *Server) listTasks(c *gin.Context) {
	var q models.ListTasksReq
	if err := c.ShouldBindQuery(&q); err != nil {
		util.AbortWithError(c, models.ErrInvalidRequest("Invalid query: "+err.Error()))
		return
	}
	list, err := s.market.ListTasks(accountOf(c).Id, q)
	util.Respond(c, http.StatusOK, list, err)
}

func (s *Server) getTask(c *gin.Context) {
	t, err := s.market.GetTask(accountOf(c).Id, c.Param("id"))
	util.Respond(c, http.StatusOK, t, err)
}

func (s *Server) updateTask(c *gin.Context) {
	var req models.UpdateTaskReq
	if err := bindJSON(c, &req); err != nil {
		util.AbortWithError(c, err)
		return
	}
	t, err := s.market.UpdateTask(accountOf(c).Id, c.Param("id"), req)
	util.Respond(c, http.StatusOK, t, err)
}

func (s *Server) cancelTask(c *gin.Context) {
	t, err := s.market.CancelTask(accountOf(c).Id, c.Param("id"))
	util.Respond(c, http.StatusOK, t, err)
}

func (s *Server) taskLogs(c *gin.Context) {
	lines, err := queryInt(c, "lines", 0)
	if err != nil {
		util.AbortWithError(c, err)
		return
	}
	out, err := s.market.TaskLogs(accountOf(c).Id, c.Param("id"), lines)
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) taskMetrics(c *gin.Context) {
	out, err := s.market.TaskMetrics(accountOf(c).Id, c.Param("id"))
	util.Respond(c, http.StatusOK, out, err)
}

func (s *Server) taskResults(c *gin.Context) {
	out, err := s.market.TaskResults(accountOf(c).Id, c.Param("id"))
	util.Respond(c, http.StatusOK, out, err)
}
