package store

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	rateStatsPrefix    = "glassrain:ratelimit:stats"
	rateStatsBucketTTL = 24 * time.Hour
)

// RecordRateDecision 把一次限流判定计入 Redis: 累计总量加一个按分钟的
// 时间桶。Redis 未配置时是无操作，失败只记录日志。
func (s *Store) RecordRateDecision(ctx context.Context, clientID string, limited bool) {
	if s.Redis == nil {
		return
	}

	field := "allowed"
	if limited {
		field = "denied"
	}

	totalKey := rateStatsPrefix + ":total"
	bucketKey := fmt.Sprintf("%s:minute:%s", rateStatsPrefix, time.Now().UTC().Format("200601021504"))

	pipe := s.Redis.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	pipe.Expire(ctx, bucketKey, rateStatsBucketTTL)
	if clientID != "" {
		pipe.HIncrBy(ctx, rateStatsPrefix+":client:"+clientID, field, 1)
		pipe.Expire(ctx, rateStatsPrefix+":client:"+clientID, rateStatsBucketTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.WithErr(err).Warn("限流统计写入 Redis 失败")
	}
}

// RateStatsTotals 返回累计的放行/拒绝计数。Redis 未配置或读取失败时
// 返回零值。
func (s *Store) RateStatsTotals(ctx context.Context) (allowed, denied int64) {
	if s.Redis == nil {
		return 0, 0
	}
	fields, err := s.Redis.HGetAll(ctx, rateStatsPrefix+":total").Result()
	if err != nil {
		s.log.WithErr(err).Warn("限流统计读取 Redis 失败")
		return 0, 0
	}
	allowed, _ = strconv.ParseInt(fields["allowed"], 10, 64)
	denied, _ = strconv.ParseInt(fields["denied"], 10, 64)
	return allowed, denied
}
