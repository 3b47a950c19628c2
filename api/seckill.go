package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/flashmart/seckill/api/model"
)

// IssueToken mints the single-use token the purchase endpoints require.
func (a Api) IssueToken(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	token, err := a.engine.IssueIdempotencyToken(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Purchase is the synchronous seckill path: the caller gets the order or the
// rejection in the response.
func (a Api) Purchase(c *gin.Context) {
	var req model2.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := req.ValidatePurchaseRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	order, err := a.engine.DoSeckill(c.Request.Context(), req.UserID, req.ProductID, req.Quantity, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// SubmitAsync queues the purchase and returns the request ID to poll.
func (a Api) SubmitAsync(c *gin.Context) {
	var req model2.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := req.ValidateAsyncSubmitRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	request, err := a.engine.SubmitAsync(c.Request.Context(), req.UserID, req.ProductID, req.Quantity, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, request)
}

// GetRequestStatus returns the pollable record of an async request.
func (a Api) GetRequestStatus(c *gin.Context) {
	requestID, ok := requiredParam(c, "request_id")
	if !ok {
		return
	}

	request, err := a.engine.GetAsyncRequest(c.Request.Context(), requestID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// GetResult reports whether the user won the product.
func (a Api) GetResult(c *gin.Context) {
	userID := c.Query("user_id")
	productID := c.Query("product_id")
	if userID == "" || productID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and product_id query parameters are required"})
		return
	}

	order, err := a.engine.GetSeckillResult(c.Request.Context(), userID, productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// GetUserRequests lists the caller's recent async requests.
func (a Api) GetUserRequests(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	requests, err := a.engine.GetUserRequests(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, requests)
}

// GetRateLimitStatus exposes the consumption of a named policy.
func (a Api) GetRateLimitStatus(c *gin.Context) {
	name, ok := requiredParam(c, "name")
	if !ok {
		return
	}

	count, err := a.engine.RateLimitStatus(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"policy": name, "current": count})
}

// ResetRateLimit clears a named policy's state.
func (a Api) ResetRateLimit(c *gin.Context) {
	name, ok := requiredParam(c, "name")
	if !ok {
		return
	}

	if err := a.engine.ResetRateLimit(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"policy": name, "reset": true})
}
