package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/flashmart/seckill/api/model"
	"github.com/flashmart/seckill/model"
)

func (a Api) CreateProduct(c *gin.Context) {
	var newProduct model2.CreateProduct
	if err := c.ShouldBindJSON(&newProduct); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newProduct.ValidateCreateProduct(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.engine.CreateProduct(c.Request.Context(), newProduct.ToProduct(), newProduct.Stock)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetProduct(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	resp, err := a.engine.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) UpdateProductStatus(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	var update model2.UpdateProductStatus
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := update.ValidateUpdateProductStatus(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := a.engine.UpdateProductStatus(c.Request.Context(), id, model.ProductStatus(update.Status)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"product_id": id, "status": update.Status})
}

// WarmupProduct loads the product's durable stock into the cached counter.
func (a Api) WarmupProduct(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	if err := a.engine.WarmupStock(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"product_id": id, "warmed": true})
}

// WarmupAllLive warms every product currently live for seckill.
func (a Api) WarmupAllLive(c *gin.Context) {
	warmed, err := a.engine.WarmupAllLive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"warmed": warmed})
}

// GetStock reports the cached counter and the durable row side by side.
func (a Api) GetStock(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	cached, durable, err := a.engine.GetStock(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": id,
		"cached":     cached,
		"stock":      durable,
	})
}

// GetStockConsistency runs the operator probe comparing both stock sides.
func (a Api) GetStockConsistency(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}

	status, err := a.engine.CheckStockConsistency(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (a Api) GetUserOrders(c *gin.Context) {
	userID, ok := requiredParam(c, "user_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, err := a.engine.GetUserOrders(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}
