package controller

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"insight-gateway/internal/model"
	"insight-gateway/internal/service"
	"insight-gateway/internal/utils"
	"insight-gateway/pkg/response"
)

type QueryController struct {
	engine      *service.RetrievalService
	verifier    *service.FactVerifier
	validator   *validator.Validate
	maxPageSize int
}

func NewQueryController(engine *service.RetrievalService, verifier *service.FactVerifier, maxPageSize int) *QueryController {
	if maxPageSize <= 0 {
		maxPageSize = 10000
	}
	return &QueryController{
		engine:      engine,
		verifier:    verifier,
		validator:   validator.New(),
		maxPageSize: maxPageSize,
	}
}

// ListCustomers godoc
// @Summary List customers
// @Description Returns one 1-based page of customers in load order.
// @Tags customers
// @Produce json
// @Param page query int false "Page number, default 1"
// @Param page_size query int false "Page size, default from config"
// @Success 200 {object} response.StandardResponse{data=model.PageResult}
// @Failure 400 {object} response.StandardResponse
// @Router /api/v1/customers [get]
func (qc *QueryController) ListCustomers(c *gin.Context) {
	var req model.ListCustomersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.InvalidRequestResponse(err.Error(), correlationID(c)))
		return
	}
	if err := qc.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse(utils.ErrCodeInvalidPage, "Invalid page", validationMessage(err), correlationID(c)))
		return
	}

	page, pageSize, ok := qc.pageParams(c, req.Page, req.PageSize)
	if !ok {
		return
	}

	result, err := qc.engine.ListCustomers(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// ListOrders godoc
// @Summary List orders
// @Description Returns one 1-based page of orders, optionally filtered by status and customer id.
// @Tags orders
// @Produce json
// @Param status query string false "Order status"
// @Param customer_id query string false "Customer id"
// @Param page query int false "Page number, default 1"
// @Param page_size query int false "Page size, default from config"
// @Success 200 {object} response.StandardResponse{data=model.PageResult}
// @Failure 400 {object} response.StandardResponse
// @Router /api/v1/orders [get]
func (qc *QueryController) ListOrders(c *gin.Context) {
	var req model.ListOrdersRequest
	if !qc.bindQuery(c, &req) {
		return
	}
	page, pageSize, ok := qc.pageParams(c, req.Page, req.PageSize)
	if !ok {
		return
	}
	filter := service.OrderFilter{Status: req.Status, CustomerID: req.CustomerID}
	result, err := qc.engine.ListOrders(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// ListProducts godoc
// @Summary List products
// @Description Returns one 1-based page of products, optionally filtered by category and name words.
// @Tags products
// @Produce json
// @Param category query string false "Category"
// @Param name query string false "Words the name must contain"
// @Param page query int false "Page number, default 1"
// @Param page_size query int false "Page size, default from config"
// @Success 200 {object} response.StandardResponse{data=model.PageResult}
// @Failure 400 {object} response.StandardResponse
// @Router /api/v1/products/list [get]
func (qc *QueryController) ListProducts(c *gin.Context) {
	var req model.ListProductsRequest
	if !qc.bindQuery(c, &req) {
		return
	}
	page, pageSize, ok := qc.pageParams(c, req.Page, req.PageSize)
	if !ok {
		return
	}
	filter := service.ProductFilter{Category: req.Category, Name: req.Name}
	result, err := qc.engine.ListProducts(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// pageParams applies the page defaults and the page size ceiling. An
// omitted page_size never exceeds the ceiling.
func (qc *QueryController) pageParams(c *gin.Context, pagePtr, pageSizePtr *int) (int, int, bool) {
	page, pageSize := 1, min(qc.engine.Options().DefaultPageSize, qc.maxPageSize)
	if pagePtr != nil {
		page = *pagePtr
	}
	if pageSizePtr != nil {
		pageSize = *pageSizePtr
	}
	if pageSize > qc.maxPageSize {
		c.JSON(http.StatusBadRequest, response.ErrorResponse(utils.ErrCodeInvalidPage, "Invalid page",
			fmt.Sprintf("page_size must be <= %d", qc.maxPageSize), correlationID(c)))
		return 0, 0, false
	}
	return page, pageSize, true
}

// LookupCustomer godoc
// @Summary Find customers by name
// @Description Exact normalized match; falls back to fuzzy matching when there is none.
// @Tags customers
// @Produce json
// @Param name query string true "Customer name"
// @Success 200 {object} response.StandardResponse{data=model.LookupResult}
// @Router /api/v1/customers/lookup [get]
func (qc *QueryController) LookupCustomer(c *gin.Context) {
	var req model.LookupRequest
	if !qc.bindQuery(c, &req) {
		return
	}
	result, err := qc.engine.LookupCustomer(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// OrdersForCustomer godoc
// @Summary Orders of a customer id
// @Tags customers
// @Produce json
// @Param id path string true "Customer id"
// @Success 200 {object} response.StandardResponse{data=model.RowsResult}
// @Router /api/v1/customers/{id}/orders [get]
func (qc *QueryController) OrdersForCustomer(c *gin.Context) {
	result, err := qc.engine.OrdersForCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// CustomerOrders godoc
// @Summary Customers by name with their orders and products
// @Tags customers
// @Produce json
// @Param name query string true "Customer name"
// @Success 200 {object} response.StandardResponse{data=model.CustomerOrdersResult}
// @Router /api/v1/customers/orders [get]
func (qc *QueryController) CustomerOrders(c *gin.Context) {
	var req model.LookupRequest
	if !qc.bindQuery(c, &req) {
		return
	}
	result, err := qc.engine.CustomerOrders(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// ProductsByCategory godoc
// @Summary Products of a category
// @Tags products
// @Produce json
// @Param category query string true "Category"
// @Success 200 {object} response.StandardResponse{data=model.RowsResult}
// @Router /api/v1/products [get]
func (qc *QueryController) ProductsByCategory(c *gin.Context) {
	var req model.CategoryRequest
	if !qc.bindQuery(c, &req) {
		return
	}
	result, err := qc.engine.ProductsByCategory(c.Request.Context(), req.Category)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// SearchProducts godoc
// @Summary Products whose name contains every word of q
// @Tags products
// @Produce json
// @Param q query string true "Search words"
// @Success 200 {object} response.StandardResponse{data=model.RowsResult}
// @Router /api/v1/products/search [get]
func (qc *QueryController) SearchProducts(c *gin.Context) {
	var req model.SearchRequest
	if !qc.bindQuery(c, &req) {
		return
	}
	result, err := qc.engine.SearchProducts(c.Request.Context(), req.Term)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// Aggregate godoc
// @Summary Count, sum or average over filtered rows
// @Tags queries
// @Accept json
// @Produce json
// @Param request body model.AggregateSpec true "Aggregate"
// @Success 200 {object} response.StandardResponse{data=model.AggregateResult}
// @Failure 422 {object} response.StandardResponse
// @Router /api/v1/aggregate [post]
func (qc *QueryController) Aggregate(c *gin.Context) {
	var spec model.AggregateSpec
	if !qc.bindJSON(c, &spec) {
		return
	}
	result, err := qc.engine.Aggregate(c.Request.Context(), spec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// Execute godoc
// @Summary Run a structured query
// @Description Dispatches {operation, args} to the matching retrieval operation.
// @Tags queries
// @Accept json
// @Produce json
// @Param request body model.Query true "Structured query"
// @Success 200 {object} response.StandardResponse
// @Router /api/v1/query [post]
func (qc *QueryController) Execute(c *gin.Context) {
	var q model.Query
	if !qc.bindJSON(c, &q) {
		return
	}
	result, err := qc.engine.Execute(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse(result, correlationID(c)))
}

// VerifyResponse summarizes a verification batch
type VerifyResponse struct {
	Verdicts   []model.Verdict `json:"verdicts"`
	Verified   int             `json:"verified"`
	Total      int             `json:"total"`
	Generation uint64          `json:"generation"`
}

// Verify godoc
// @Summary Verify claims against the current data
// @Description Re-runs each claim's query and reports whether it reproduces the claimed value.
// @Tags verification
// @Accept json
// @Produce json
// @Param request body model.VerifyRequest true "Claims"
// @Success 200 {object} response.StandardResponse{data=VerifyResponse}
// @Router /api/v1/verify [post]
func (qc *QueryController) Verify(c *gin.Context) {
	var req model.VerifyRequest
	if !qc.bindJSON(c, &req) {
		return
	}

	verdicts := qc.verifier.VerifyAll(c.Request.Context(), req.Claims)
	out := VerifyResponse{
		Verdicts:   verdicts,
		Total:      len(verdicts),
		Generation: qc.engine.Generation(),
	}
	for _, v := range verdicts {
		if v.Verified {
			out.Verified++
		}
	}
	c.JSON(http.StatusOK, response.SuccessResponse(out, correlationID(c)))
}

func (qc *QueryController) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, response.InvalidRequestResponse(err.Error(), correlationID(c)))
		return false
	}
	if err := qc.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse(utils.ErrCodeInvalidQuery, "Invalid query", validationMessage(err), correlationID(c)))
		return false
	}
	return true
}

func (qc *QueryController) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse(utils.ErrCodeInvalidJSON, "Invalid request body", err.Error(), correlationID(c)))
		return false
	}
	if err := qc.validator.Struct(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationErrorResponse(validationMessage(err), correlationID(c)))
		return false
	}
	return true
}
