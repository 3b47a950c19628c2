package seckill

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"

	"github.com/hibiken/asynq"

	"github.com/flashmart/seckill/config"
	redis_db "github.com/flashmart/seckill/internal/redis-db"
	"github.com/flashmart/seckill/model"
)

// Queue wraps the asynq client used to publish seckill requests to the
// broker.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// SeckillTypePayload represents the payload for a seckill task.
type SeckillTypePayload struct {
	Data model.SeckillMessage
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// Enqueue publishes a seckill message to the broker. The task ID is the
// request ID, so a resubmitted request is deduplicated at the broker rather
// than processed twice.
func (q *Queue) Enqueue(ctx context.Context, message *model.SeckillMessage) error {
	ctx, span := tracer.Start(ctx, "Adding seckill request to queue")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	info, err := q.Client.EnqueueContext(ctx, q.getTask(message, payload), asynq.MaxRetry(cfg.Queue.MaxRetryAttempts))
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued seckill request: %+v", message.RequestID)

	return nil
}

// getTask assigns the message to a queue picked by hashing the product ID.
// All requests for one product land in the same queue and are processed
// serially, so the lock contention on a hot product stays inside one worker
// stream instead of spanning all of them.
func (q *Queue) getTask(message *model.SeckillMessage, payload []byte) *asynq.Task {
	cnf, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config: %v", err)
		return nil
	}
	queueIndex := hashProductID(message.ProductID) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.SeckillQueuePrefix, queueIndex+1)

	taskOptions := []asynq.Option{asynq.TaskID(message.RequestID), asynq.Queue(queueName)}

	return asynq.NewTask(queueName, payload, taskOptions...)
}

// hashProductID hashes a product ID to an integer for queue selection.
func hashProductID(productID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(productID))
	return int(h.Sum32())
}
