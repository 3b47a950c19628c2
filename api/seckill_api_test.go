package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	seckill "github.com/flashmart/seckill"
	"github.com/flashmart/seckill/config"
	"github.com/flashmart/seckill/database/mocks"
	"github.com/flashmart/seckill/model"
)

func newTestAPI(t *testing.T) (*gin.Engine, *seckill.Seckill, *mocks.MockDataSource, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cnf := &config.Configuration{}
	cnf.Redis.Dns = mr.Addr()
	cnf.Queue.SeckillQueuePrefix = "new:seckill"
	cnf.Queue.NumberOfQueues = 4
	cnf.Queue.MaxRetryAttempts = 3
	cnf.Queue.RequestTTLHours = 24
	cnf.Lock.LeaseSecs = 30
	cnf.Lock.WaitSecs = 1
	cnf.Lock.Shards = 1
	cnf.Stock.CacheTTLHours = 24
	cnf.RateLimit.Policies = map[string]config.RateLimitPolicy{
		"seckill":      {Algorithm: "sliding_window", WindowSecs: 60, Limit: 1000},
		"async-submit": {Algorithm: "token_bucket", Capacity: 1000, RefillRate: 100, Tokens: 1},
	}
	config.MockConfig(cnf)

	ds := new(mocks.MockDataSource)
	engine, err := seckill.NewSeckill(ds)
	require.NoError(t, err)

	router := NewAPI(engine).Router()
	return router, engine, ds, mr
}

func liveProduct(productID string) *model.Product {
	now := time.Now()
	return &model.Product{
		ProductID:        productID,
		Name:             "Limited Edition Widget",
		Price:            decimal.NewFromFloat(49.99),
		SeckillPrice:     decimal.NewFromFloat(19.99),
		Status:           model.StatusLiveSeckill,
		SeckillStartTime: now.Add(-time.Hour),
		SeckillEndTime:   now.Add(time.Hour),
	}
}

func fetchToken(t *testing.T, router *gin.Engine, userID string) string {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/seckill/token?user_id="+userID, nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body["token"])
	return body["token"]
}

func TestPurchaseEndpoint_Success(t *testing.T) {
	router, _, ds, mr := newTestAPI(t)

	userID := gofakeit.UUID()
	productID := "prd_" + gofakeit.UUID()
	product := liveProduct(productID)
	require.NoError(t, mr.Set("seckill:stock:"+productID, "10"))

	order := model.NewSeckillOrder(userID, product, 1)
	ds.On("OrderExists", mock.Anything, userID, productID).Return(false, nil)
	ds.On("GetProductByID", mock.Anything, productID).Return(product, nil)
	ds.On("DecreaseAvailableStock", mock.Anything, productID, int64(1)).Return(true, nil)
	ds.On("CreateOrder", mock.Anything, mock.AnythingOfType("*model.SeckillOrder")).Return(order, nil)
	ds.On("GetStockByProductID", mock.Anything, productID).
		Return(&model.StockRecord{ProductID: productID, TotalStock: 10, AvailableStock: 9}, nil)

	payload := fmt.Sprintf(`{"user_id":%q,"product_id":%q,"quantity":1,"token":%q}`,
		userID, productID, fetchToken(t, router, userID))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/seckill", bytes.NewBufferString(payload))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var got model.SeckillOrder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, order.OrderID, got.OrderID)
}

func TestPurchaseEndpoint_MissingFields(t *testing.T) {
	router, _, _, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/seckill", bytes.NewBufferString(`{"user_id":"u1"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseEndpoint_SoldOut(t *testing.T) {
	router, _, ds, mr := newTestAPI(t)

	userID := gofakeit.UUID()
	productID := "prd_" + gofakeit.UUID()
	require.NoError(t, mr.Set("seckill:stock:"+productID, "0"))

	ds.On("OrderExists", mock.Anything, userID, productID).Return(false, nil)
	ds.On("GetProductByID", mock.Anything, productID).Return(liveProduct(productID), nil)

	payload := fmt.Sprintf(`{"user_id":%q,"product_id":%q,"quantity":1,"token":%q}`,
		userID, productID, fetchToken(t, router, userID))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/seckill", bytes.NewBufferString(payload))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])
}

func TestAsyncEndpoints(t *testing.T) {
	router, _, _, _ := newTestAPI(t)

	userID := gofakeit.UUID()
	productID := "prd_" + gofakeit.UUID()

	// no token: the async path accepts bare submissions
	payload := fmt.Sprintf(`{"user_id":%q,"product_id":%q,"quantity":1}`, userID, productID)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/seckill/async", bytes.NewBufferString(payload))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var request model.AsyncRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
	assert.Equal(t, model.RequestEnqueued, request.Status)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/seckill/async/"+request.RequestID, nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/seckill/async/req_missing", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStockEndpoints(t *testing.T) {
	router, _, ds, mr := newTestAPI(t)

	productID := "prd_" + gofakeit.UUID()
	require.NoError(t, mr.Set("seckill:stock:"+productID, "9"))

	ds.On("GetStockByProductID", mock.Anything, productID).
		Return(&model.StockRecord{ProductID: productID, TotalStock: 10, AvailableStock: 9}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/products/"+productID+"/stock", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/products/"+productID+"/consistency", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["in_sync"])
}

func TestRateLimitEndpoints(t *testing.T) {
	router, _, _, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ratelimit/seckill", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/ratelimit/seckill", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateProductEndpoint(t *testing.T) {
	router, _, ds, _ := newTestAPI(t)

	created := liveProduct("prd_new")
	ds.On("CreateProduct", mock.Anything, mock.AnythingOfType("*model.Product")).Return(created, nil)
	ds.On("CreateStockRecord", mock.Anything, mock.AnythingOfType("*model.StockRecord")).
		Return(&model.StockRecord{ProductID: "prd_new", TotalStock: 100, AvailableStock: 100}, nil)

	payload := `{"name":"Widget","price":49.99,"seckill_price":19.99,"stock":100}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/products", bytes.NewBufferString(payload))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}
