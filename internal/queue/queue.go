package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a durable at-least-once job queue on Redis. Pending jobs live in a
// list; dequeued jobs move atomically into an in-flight sorted set scored by
// their redelivery deadline. Jobs not acked before the deadline are reclaimed
// back to pending, which gives crashed workers visibility-timeout redelivery.
type Queue struct {
	client *redis.Client
	name   string
}

// Message is the job payload carried on the queue.
type Message struct {
	CallID string `json:"call_id"`
}

func New(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (q *Queue) pendingKey() string  { return q.name + ":pending" }
func (q *Queue) inflightKey() string { return q.name + ":inflight" }
func (q *Queue) attemptsKey() string { return q.name + ":attempts" }

var dequeueScript = redis.NewScript(`
-- KEYS[1] = pending list
-- KEYS[2] = inflight zset
-- ARGV[1] = redelivery deadline (unix ms)
local msg = redis.call('RPOP', KEYS[1])
if not msg then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[1], msg)
return msg
`)

var requeueScript = redis.NewScript(`
-- KEYS[1] = pending list
-- KEYS[2] = inflight zset
-- KEYS[3] = attempts hash
-- ARGV[1] = message
-- ARGV[2] = '1' to count this redelivery as an attempt
redis.call('ZREM', KEYS[2], ARGV[1])
local attempts
if ARGV[2] == '1' then
  attempts = redis.call('HINCRBY', KEYS[3], ARGV[1], 1)
else
  attempts = tonumber(redis.call('HGET', KEYS[3], ARGV[1]) or '0')
end
redis.call('LPUSH', KEYS[1], ARGV[1])
return attempts
`)

var reclaimScript = redis.NewScript(`
-- KEYS[1] = pending list
-- KEYS[2] = inflight zset
-- ARGV[1] = now (unix ms)
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], 0, ARGV[1])
for _, msg in ipairs(expired) do
  redis.call('ZREM', KEYS[2], msg)
  redis.call('LPUSH', KEYS[1], msg)
end
return #expired
`)

func (q *Queue) Enqueue(ctx context.Context, callID string) error {
	payload, _ := json.Marshal(Message{CallID: callID})
	return q.client.LPush(ctx, q.pendingKey(), payload).Err()
}

// Dequeue pops one job and marks it in flight until the visibility timeout
// elapses. Returns ok=false when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context, visibility time.Duration) (Message, bool, error) {
	deadline := time.Now().Add(visibility).UnixMilli()
	res, err := dequeueScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.inflightKey()}, deadline).Result()
	if errors.Is(err, redis.Nil) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}

	raw, ok := res.(string)
	if !ok {
		return Message{}, false, fmt.Errorf("unexpected dequeue reply %T", res)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return Message{}, false, fmt.Errorf("malformed job payload: %w", err)
	}
	return msg, true, nil
}

// Ack removes a completed job from the in-flight set and clears its attempt
// counter.
func (q *Queue) Ack(ctx context.Context, msg Message) error {
	payload, _ := json.Marshal(msg)
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey(), payload)
	pipe.HDel(ctx, q.attemptsKey(), string(payload))
	_, err := pipe.Exec(ctx)
	return err
}

// Requeue puts a job back on pending and returns the attempt count.
// countAttempt is false for redeliveries that are not the job's fault, such
// as losing the per-call lock to another worker.
func (q *Queue) Requeue(ctx context.Context, msg Message, countAttempt bool) (int64, error) {
	payload, _ := json.Marshal(msg)
	flag := "0"
	if countAttempt {
		flag = "1"
	}
	return requeueScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.inflightKey(), q.attemptsKey()}, payload, flag).Int64()
}

// Defer reschedules an in-flight job to be reclaimed after the delay instead
// of putting it straight back on pending. Used when the job cannot run right
// now, such as losing the per-call lock to another worker.
func (q *Queue) Defer(ctx context.Context, msg Message, delay time.Duration) error {
	payload, _ := json.Marshal(msg)
	return q.client.ZAdd(ctx, q.inflightKey(), redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: payload,
	}).Err()
}

// ReclaimExpired moves in-flight jobs past their redelivery deadline back to
// pending. Run periodically by the worker.
func (q *Queue) ReclaimExpired(ctx context.Context) (int64, error) {
	return reclaimScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.inflightKey()}, time.Now().UnixMilli()).Int64()
}

// Attempts returns how many requeues this job has accumulated.
func (q *Queue) Attempts(ctx context.Context, msg Message) (int64, error) {
	payload, _ := json.Marshal(msg)
	n, err := q.client.HGet(ctx, q.attemptsKey(), string(payload)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pendingKey()).Result()
}
