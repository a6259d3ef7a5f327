package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of go-redis the broker needs.
type redisClient interface {
	redis.Scripter
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Close() error
}

// RedisBroker stores each job as a hash and tracks states in per-queue keys:
//
//	{prefix}:{queue}:job:{id}  hash with the job fields
//	{prefix}:{queue}:wait      zset scored by priority then insertion order
//	{prefix}:{queue}:delayed   zset scored by run-at (unix ms)
//	{prefix}:{queue}:active    zset scored by lease expiry (unix ms)
//	{prefix}:{queue}:completed list, newest first
//	{prefix}:{queue}:failed    list, newest first
//	{prefix}:{queue}:seq       insertion counter
//
// All transitions run as Lua scripts so a job is never in two states. A claim
// stores a fresh lease token in the job hash; renewing or leaving active
// requires that token.
type RedisBroker struct {
	client redisClient
	prefix string
}

func NewRedisBroker(client redisClient, prefix string) (*RedisBroker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "cadence"
	}
	return &RedisBroker{client: client, prefix: prefix}, nil
}

type queueKeys struct {
	jobPrefix, wait, delayed, active, completed, failed, seq string
}

func (b *RedisBroker) keys(queue string) queueKeys {
	base := b.prefix + ":" + queue + ":"
	return queueKeys{
		jobPrefix: base + "job:",
		wait:      base + "wait",
		delayed:   base + "delayed",
		active:    base + "active",
		completed: base + "completed",
		failed:    base + "failed",
		seq:       base + "seq",
	}
}

// Scores in the wait set put priority in the high bits and the insertion
// counter in the low 32 bits, so equal priorities run FIFO.
const luaScore = `
local function score(prio, seq)
  return tonumber(prio) * 4294967296 + (tonumber(seq) % 4294967296)
end
`

var enqueueScript = redis.NewScript(luaScore + `
-- KEYS: job, wait, delayed, seq
-- ARGV: id, name, data, opts, createdAt, runAt, priority
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local seq = redis.call("INCR", KEYS[4])
redis.call("HSET", KEYS[1], "id", ARGV[1], "name", ARGV[2], "data", ARGV[3], "opts", ARGV[4],
  "createdAt", ARGV[5], "attemptsMade", 0, "priority", ARGV[7], "seq", seq)
local runAt = tonumber(ARGV[6])
if runAt > 0 then
  redis.call("HSET", KEYS[1], "state", "delayed", "runAt", ARGV[6])
  redis.call("ZADD", KEYS[3], runAt, ARGV[1])
else
  redis.call("HSET", KEYS[1], "state", "waiting")
  redis.call("ZADD", KEYS[2], score(ARGV[7], seq), ARGV[1])
end
return 1
`)

var claimScript = redis.NewScript(`
-- KEYS: wait, active
-- ARGV: jobPrefix, now, leaseUntil, token
local popped = redis.call("ZPOPMIN", KEYS[1])
if #popped == 0 then
  return false
end
local id = popped[1]
local key = ARGV[1] .. id
redis.call("ZADD", KEYS[2], tonumber(ARGV[3]), id)
redis.call("HSET", key, "state", "active", "processedAt", ARGV[2], "lease", ARGV[4])
redis.call("HDEL", key, "runAt")
redis.call("HINCRBY", key, "attemptsMade", 1)
return id
`)

var extendScript = redis.NewScript(`
-- KEYS: active, job
-- ARGV: id, leaseUntil, token
if not redis.call("ZSCORE", KEYS[1], ARGV[1]) or redis.call("HGET", KEYS[2], "lease") ~= ARGV[3] then
  return 0
end
redis.call("ZADD", KEYS[1], tonumber(ARGV[2]), ARGV[1])
return 1
`)

// luaFinish moves a job into a finished list and applies retention:
// keep < 0 deletes the job, keep > 0 keeps the newest keep jobs.
const luaFinish = `
local function finish(listKey, jobKey, jobPrefix, id, keep)
  if keep < 0 then
    redis.call("DEL", jobKey)
    return
  end
  redis.call("LPUSH", listKey, id)
  if keep > 0 then
    local stale = redis.call("LRANGE", listKey, keep, -1)
    for _, sid in ipairs(stale) do
      redis.call("DEL", jobPrefix .. sid)
    end
    redis.call("LTRIM", listKey, 0, keep - 1)
  end
end
`

var finishScript = redis.NewScript(luaFinish + `
-- KEYS: active, list, job
-- ARGV: id, state, field, value, finishedAt, keep, jobPrefix, token
if redis.call("HGET", KEYS[3], "lease") ~= ARGV[8] or redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("HDEL", KEYS[3], "lease")
redis.call("HSET", KEYS[3], "state", ARGV[2], ARGV[3], ARGV[4], "finishedAt", ARGV[5])
finish(KEYS[2], KEYS[3], ARGV[7], ARGV[1], tonumber(ARGV[6]))
return 1
`)

var retryScript = redis.NewScript(luaScore + `
-- KEYS: active, delayed, wait, job
-- ARGV: id, runAt, reason, now, token
if redis.call("HGET", KEYS[4], "lease") ~= ARGV[5] or redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("HDEL", KEYS[4], "lease")
redis.call("HSET", KEYS[4], "failedReason", ARGV[3])
if tonumber(ARGV[2]) > tonumber(ARGV[4]) then
  redis.call("HSET", KEYS[4], "state", "delayed", "runAt", ARGV[2])
  redis.call("ZADD", KEYS[2], tonumber(ARGV[2]), ARGV[1])
else
  local f = redis.call("HMGET", KEYS[4], "priority", "seq")
  redis.call("HSET", KEYS[4], "state", "waiting")
  redis.call("ZADD", KEYS[3], score(f[1], f[2]), ARGV[1])
end
return 1
`)

var promoteScript = redis.NewScript(luaScore + luaFinish + `
-- KEYS: delayed, wait, active, failed
-- ARGV: now, jobPrefix, limit, stalledReason
local moved = 0
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[3]))
for _, id in ipairs(due) do
  local key = ARGV[2] .. id
  redis.call("ZREM", KEYS[1], id)
  local f = redis.call("HMGET", key, "priority", "seq")
  redis.call("HSET", key, "state", "waiting")
  redis.call("HDEL", key, "runAt")
  redis.call("ZADD", KEYS[2], score(f[1], f[2]), id)
  moved = moved + 1
end
local stalled = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[3]))
for _, id in ipairs(stalled) do
  local key = ARGV[2] .. id
  redis.call("ZREM", KEYS[3], id)
  redis.call("HDEL", key, "lease")
  local f = redis.call("HMGET", key, "priority", "seq", "attemptsMade", "opts")
  local opts = cjson.decode(f[4])
  local attempts = tonumber(opts["attempts"]) or 1
  if tonumber(f[3]) < attempts then
    redis.call("HSET", key, "state", "waiting")
    redis.call("ZADD", KEYS[2], score(f[1], f[2]), id)
  else
    redis.call("HSET", key, "state", "failed", "failedReason", ARGV[4], "finishedAt", ARGV[1])
    finish(KEYS[4], key, ARGV[2], id, tonumber(opts["removeOnFail"]) or 0)
  end
  moved = moved + 1
end
return moved
`)

const promoteBatch = 1000

func (b *RedisBroker) Enqueue(ctx context.Context, job *Job) (bool, error) {
	k := b.keys(job.Queue)
	opts, err := json.Marshal(job.Opts)
	if err != nil {
		return false, fmt.Errorf("marshal job options: %w", err)
	}
	var runAt int64
	if job.RunAt != nil {
		runAt = job.RunAt.UnixMilli()
	}
	n, err := enqueueScript.Run(ctx, b.client,
		[]string{k.jobPrefix + job.ID, k.wait, k.delayed, k.seq},
		job.ID, job.Name, string(job.Data), string(opts),
		job.CreatedAt.UnixMilli(), runAt, job.Opts.Priority,
	).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue %s/%s: %w", job.Queue, job.ID, err)
	}
	return n == 1, nil
}

func (b *RedisBroker) Claim(ctx context.Context, queue string, lease time.Duration) (*Job, error) {
	k := b.keys(queue)
	now := time.Now()
	token := uuid.NewString()
	id, err := claimScript.Run(ctx, b.client,
		[]string{k.wait, k.active},
		k.jobPrefix, now.UnixMilli(), now.Add(lease).UnixMilli(), token,
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim from %s: %w", queue, err)
	}
	job, err := b.Get(ctx, queue, id)
	if err != nil {
		return nil, err
	}
	job.LeaseToken = token
	return job, nil
}

func (b *RedisBroker) ExtendLease(ctx context.Context, job *Job, lease time.Duration) error {
	k := b.keys(job.Queue)
	n, err := extendScript.Run(ctx, b.client, []string{k.active, k.jobPrefix + job.ID},
		job.ID, time.Now().Add(lease).UnixMilli(), job.LeaseToken).Int()
	if err != nil {
		return fmt.Errorf("extend lease %s/%s: %w", job.Queue, job.ID, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (b *RedisBroker) Complete(ctx context.Context, job *Job, returnValue json.RawMessage) error {
	k := b.keys(job.Queue)
	return b.finish(ctx, job, k.completed, StateCompleted, "returnValue", string(returnValue), job.Opts.RemoveOnComplete)
}

func (b *RedisBroker) Fail(ctx context.Context, job *Job, reason string) error {
	k := b.keys(job.Queue)
	return b.finish(ctx, job, k.failed, StateFailed, "failedReason", reason, job.Opts.RemoveOnFail)
}

func (b *RedisBroker) finish(ctx context.Context, job *Job, list string, state State, field, value string, keep Retention) error {
	k := b.keys(job.Queue)
	n, err := finishScript.Run(ctx, b.client,
		[]string{k.active, list, k.jobPrefix + job.ID},
		job.ID, string(state), field, value, time.Now().UnixMilli(), int(keep), k.jobPrefix, job.LeaseToken,
	).Int()
	if err != nil {
		return fmt.Errorf("mark %s/%s %s: %w", job.Queue, job.ID, state, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (b *RedisBroker) Retry(ctx context.Context, job *Job, runAt time.Time, reason string) error {
	k := b.keys(job.Queue)
	n, err := retryScript.Run(ctx, b.client,
		[]string{k.active, k.delayed, k.wait, k.jobPrefix + job.ID},
		job.ID, runAt.UnixMilli(), reason, time.Now().UnixMilli(), job.LeaseToken,
	).Int()
	if err != nil {
		return fmt.Errorf("retry %s/%s: %w", job.Queue, job.ID, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (b *RedisBroker) Promote(ctx context.Context, queue string, now time.Time) (int, error) {
	k := b.keys(queue)
	n, err := promoteScript.Run(ctx, b.client,
		[]string{k.delayed, k.wait, k.active, k.failed},
		now.UnixMilli(), k.jobPrefix, promoteBatch, stalledReason,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote %s: %w", queue, err)
	}
	return n, nil
}

func (b *RedisBroker) Get(ctx context.Context, queue, id string) (*Job, error) {
	fields, err := b.client.HGetAll(ctx, b.keys(queue).jobPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", queue, id, err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return decodeJobHash(queue, fields)
}

func (b *RedisBroker) Counts(ctx context.Context, queue string) (Counts, error) {
	k := b.keys(queue)
	var c Counts
	var err error
	if c.Waiting, err = b.client.ZCard(ctx, k.wait).Result(); err != nil {
		return c, err
	}
	if c.Delayed, err = b.client.ZCard(ctx, k.delayed).Result(); err != nil {
		return c, err
	}
	if c.Active, err = b.client.ZCard(ctx, k.active).Result(); err != nil {
		return c, err
	}
	if c.Completed, err = b.client.LLen(ctx, k.completed).Result(); err != nil {
		return c, err
	}
	if c.Failed, err = b.client.LLen(ctx, k.failed).Result(); err != nil {
		return c, err
	}
	return c, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func decodeJobHash(queue string, f map[string]string) (*Job, error) {
	job := &Job{
		ID:           f["id"],
		Queue:        queue,
		Name:         f["name"],
		Data:         json.RawMessage(f["data"]),
		State:        State(f["state"]),
		FailedReason: f["failedReason"],
	}
	if err := json.Unmarshal([]byte(f["opts"]), &job.Opts); err != nil {
		return nil, fmt.Errorf("decode options of %s/%s: %w", queue, job.ID, err)
	}
	if v := f["returnValue"]; v != "" {
		job.ReturnValue = json.RawMessage(v)
	}
	job.AttemptsMade, _ = strconv.Atoi(f["attemptsMade"])
	job.CreatedAt = msTime(f["createdAt"])
	job.ProcessedAt = msTimePtr(f["processedAt"])
	job.FinishedAt = msTimePtr(f["finishedAt"])
	job.RunAt = msTimePtr(f["runAt"])
	return job, nil
}

func msTime(v string) time.Time {
	ms, _ := strconv.ParseInt(v, 10, 64)
	return time.UnixMilli(ms)
}

func msTimePtr(v string) *time.Time {
	if v == "" {
		return nil
	}
	t := msTime(v)
	return &t
}
