package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/pathweaver/pathweaver/internal/pkg/errcode"
	"github.com/pathweaver/pathweaver/internal/pkg/response"
	"github.com/pathweaver/pathweaver/internal/service"
)

type PathHandler struct {
	paths *service.PathService
}

func NewPathHandler(paths *service.PathService) *PathHandler {
	return &PathHandler{paths: paths}
}

type createPathRequest struct {
	Query      string  `json:"query"`
	MinScore   float32 `json:"min_score"`
	Limit      int     `json:"limit"`
	Title      string  `json:"title"`
	Difficulty string  `json:"difficulty"`
}

func (h *PathHandler) Create(c *gin.Context) {
	var req createPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.paths.CreatePath(c.Request.Context(), getOwnerID(c), service.CreatePathRequest{
		Query:      req.Query,
		MinScore:   req.MinScore,
		Limit:      req.Limit,
		Title:      req.Title,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *PathHandler) Get(c *gin.Context) {
	detail, err := h.paths.GetPath(c.Request.Context(), getOwnerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *PathHandler) List(c *gin.Context) {
	paths, err := h.paths.ListPaths(c.Request.Context(), getOwnerID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"paths": paths})
}

func (h *PathHandler) Delete(c *gin.Context) {
	if err := h.paths.DeletePath(c.Request.Context(), getOwnerID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *PathHandler) GetConcept(c *gin.Context) {
	detail, err := h.paths.GetConcept(c.Request.Context(), getOwnerID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, detail)
}

type searchRequest struct {
	Query        string  `json:"query"`
	MinScore     float32 `json:"min_score"`
	Limit        int     `json:"limit"`
	IncludeGraph bool    `json:"include_graph"`
}

func (h *PathHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	results, err := h.paths.Search(c.Request.Context(), service.SearchRequest{
		Query:        req.Query,
		MinScore:     req.MinScore,
		Limit:        req.Limit,
		IncludeGraph: req.IncludeGraph,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"results": results})
}
