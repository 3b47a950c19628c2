package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	seckill "github.com/flashmart/seckill"
	"github.com/flashmart/seckill/api/middleware"
	"github.com/flashmart/seckill/config"
	"github.com/flashmart/seckill/internal/apierror"
)

type Api struct {
	engine *seckill.Seckill
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/seckill/token", a.IssueToken)
	router.POST("/seckill", middleware.DistributedRateLimit(a.engine.Limiter(), "seckill"), a.Purchase)
	router.POST("/seckill/async", middleware.DistributedRateLimit(a.engine.Limiter(), "async-submit"), a.SubmitAsync)
	router.GET("/seckill/async/:request_id", a.GetRequestStatus)
	router.GET("/seckill/result", a.GetResult)
	router.GET("/seckill/requests", a.GetUserRequests)

	router.POST("/products", a.CreateProduct)
	router.GET("/products/:id", a.GetProduct)
	router.PUT("/products/:id/status", a.UpdateProductStatus)
	router.POST("/products/:id/warmup", a.WarmupProduct)
	router.POST("/products/warmup", a.WarmupAllLive)
	router.GET("/products/:id/stock", a.GetStock)
	router.GET("/products/:id/consistency", a.GetStockConsistency)
	router.GET("/orders/:user_id", a.GetUserOrders)

	router.GET("/ratelimit/:name", a.GetRateLimitStatus)
	router.DELETE("/ratelimit/:name", a.ResetRateLimit)
	return a.router
}

func NewAPI(b *seckill.Seckill) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{engine: b, router: r}
}

// respondError maps the engine's error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{
		"error": err.Error(),
		"code":  string(apierror.KindOf(err)),
	})
}

func requiredParam(c *gin.Context, name string) (string, bool) {
	value, passed := c.Params.Get(name)
	if !passed || value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required. pass it in the route /:" + name})
		return "", false
	}
	return value, true
}
