// cmd/recorder/main.go is an asynchronous recorder service that pops match
// event data from a Redis queue and persists it to a PostgreSQL database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/matchroom-gg/matchroom/internal/cache"
	"github.com/matchroom-gg/matchroom/internal/database"
)

// RecorderService encapsulates the Redis + DB logic for capturing match
// events off the live path.
type RecorderService struct {
	redisClient *redis.Client
	batchSize   int
	flushDelay  time.Duration

	batchMu  sync.Mutex
	batch    []cache.MatchEventRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewRecorderService constructs a RecorderService instance from environment
// variables or defaults.
func NewRecorderService() *RecorderService {
	batchSize := getEnvInt("RECORDER_BATCH_SIZE", 20)
	flushMs := getEnvInt("RECORDER_FLUSH_MS", 500)

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &RecorderService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		batch:       make([]cache.MatchEventRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects to the database and blocks in the queue read loop until the
// context is cancelled.
func (rs *RecorderService) Run() {
	database.ConnectDB()

	go rs.readRedisLoop()

	log.Println("matchroom-recorder service started.")
	<-rs.ctx.Done()
	rs.flushBatchToDB()
	log.Println("matchroom-recorder shutting down.")
}

// Stop cancels the service context.
func (rs *RecorderService) Stop() {
	rs.cancelFn()
}

// readRedisLoop continuously uses BLPop to retrieve events from the Redis queue.
func (rs *RecorderService) readRedisLoop() {
	ticker := time.NewTicker(rs.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("RECORDER_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-rs.ctx.Done():
			return

		case <-ticker.C:
			rs.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := rs.redisClient.BLPop(rs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var record cache.MatchEventRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid event record: %v\n", err)
				continue
			}

			rs.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record to the in-memory batch and flushes if the
// threshold is reached.
func (rs *RecorderService) appendToBatch(record cache.MatchEventRecord) {
	rs.batchMu.Lock()
	shouldFlush := false
	rs.batch = append(rs.batch, record)
	if len(rs.batch) >= rs.batchSize {
		shouldFlush = true
	}
	rs.batchMu.Unlock()

	if shouldFlush {
		rs.flushBatchToDB()
	}
}

// flushBatchToDB flushes the current batch to the database in a single transaction.
func (rs *RecorderService) flushBatchToDB() {
	rs.batchMu.Lock()
	if len(rs.batch) == 0 {
		rs.batchMu.Unlock()
		return
	}
	batchCopy := make([]cache.MatchEventRecord, len(rs.batch))
	copy(batchCopy, rs.batch)
	rs.batch = rs.batch[:0]
	rs.batchMu.Unlock()

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertMatchEventTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertMatchEventTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
	} else {
		log.Printf("Flushed %d events to DB.\n", len(batchCopy))
	}
}

// insertMatchEventTx inserts a single event record into the match_events table.
func insertMatchEventTx(ctx context.Context, tx pgx.Tx, rec cache.MatchEventRecord) error {
	payload, err := json.Marshal(rec.EventPayload)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO match_events (
			session_code, seq_index, actor_user_id, event_type, event_payload, occurred_at
		) VALUES ($1, $2, $3, $4, $5, to_timestamp($6::double precision / 1000))
	`
	_, err = tx.Exec(ctx, q,
		rec.SessionCode, rec.SeqIndex, rec.ActorUserID, rec.EventType, payload, rec.Timestamp,
	)
	return err
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func main() {
	rs := NewRecorderService()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		rs.Stop()
	}()

	rs.Run()
}
