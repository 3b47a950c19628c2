package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/spf13/cobra"

	"github.com/flashmart/seckill/config"
	redis_db "github.com/flashmart/seckill/internal/redis-db"
)

// initializeQueues maps every hashed seckill queue to equal priority. All
// queues carry the same traffic class, so there is nothing to weight.
func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queues[cfg.Queue.QueueName(i)] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: conf.Queue.Concurrency,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *seckillInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		mux.HandleFunc(cfg.Queue.QueueName(i), b.engine.ProcessSeckillTask)
	}
}

// startMonitoringDashboard serves the asynqmon UI so operators can inspect
// pending, retried and archived seckill requests.
func startMonitoringDashboard(conf *config.Configuration) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Printf("Error parsing Redis URL for monitoring: %v", err)
		return
	}

	h := asynqmon.New(asynqmon.Options{
		RootPath: "/monitoring",
		RedisConnOpt: asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
	})

	mux := http.NewServeMux()
	mux.Handle(h.RootPath()+"/", h)

	go func() {
		log.Printf(" [*] Queue monitoring on http://localhost:%s/monitoring", conf.Queue.MonitoringPort)
		if err := http.ListenAndServe(":"+conf.Queue.MonitoringPort, mux); err != nil {
			log.Printf("Monitoring dashboard error: %v", err)
		}
	}()
}

// workerCommands defines the "workers" command that starts the queue
// consumers which drain seckill requests into durable orders.
func workerCommands(b *seckillInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start seckill workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			startMonitoringDashboard(conf)

			if err := srv.Run(mux); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
