package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Queue 持久化任务队列。投递语义为 at-least-once：
// 同一任务失败后可能被重新投递，消费方需要自行做状态条件更新。
type Queue interface {
	// Enqueue 立即入队
	Enqueue(ctx context.Context, jobID string) error
	// EnqueueIn 延迟入队，用于失败重试的退避
	EnqueueIn(ctx context.Context, jobID string, delay time.Duration) error
	// Dequeue 阻塞出队，超时返回空字符串
	Dequeue(ctx context.Context, timeout time.Duration) (string, error)
}

// RedisQueue 基于 Redis 的实现：就绪任务放 list（LPUSH/BRPOP），
// 延迟任务放 sorted set，score 为到期时间戳，每次出队前把到期成员搬回 list。
type RedisQueue struct {
	rdb  *redis.Client
	name string
}

func NewRedisQueue(rdb *redis.Client, name string) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name}
}

func (q *RedisQueue) readyKey() string {
	return "queue:" + q.name
}

func (q *RedisQueue) delayedKey() string {
	return "queue:" + q.name + ":delayed"
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.readyKey(), jobID).Err()
}

func (q *RedisQueue) EnqueueIn(ctx context.Context, jobID string, delay time.Duration) error {
	due := time.Now().Add(delay).UnixMilli()
	return q.rdb.ZAdd(ctx, q.delayedKey(), &redis.Z{
		Score:  float64(due),
		Member: jobID,
	}).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	if err := q.promoteDue(ctx); err != nil {
		return "", err
	}

	res, err := q.rdb.BRPop(ctx, timeout, q.readyKey()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BRPOP 返回 [key, value]
	return res[1], nil
}

// promoteDue 把延迟集合中已到期的任务搬回就绪队列。
// 先 ZREM 后 LPUSH，多个 worker 并发提升时同一任务只会入队一次。
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), m).Result()
		if err != nil {
			return err
		}
		if removed > 0 {
			if err := q.rdb.LPush(ctx, q.readyKey(), m).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}
