package queue

import redis "github.com/redis/go-redis/v9"

// Every state change runs as a script so the check and the write are atomic.

var enqueueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
redis.call("LPUSH", KEYS[2], ARGV[1])
return 1
`)

// KEYS: wait list, active list.
// ARGV: now, consumer, job key prefix.
// Ids whose job is no longer waiting are dropped on the way.
var leaseScript = redis.NewScript(`
while true do
  local id = redis.call("LMOVE", KEYS[1], KEYS[2], "RIGHT", "LEFT")
  if not id then
    return false
  end
  local key = ARGV[3] .. id
  if redis.call("HGET", key, "state") == "waiting" then
    redis.call("HSET", key, "state", "active", "processedAt", ARGV[1], "heartbeatAt", ARGV[1], "consumer", ARGV[2])
    redis.call("HINCRBY", key, "attemptsMade", 1)
    return id
  end
  redis.call("LREM", KEYS[2], 0, id)
end
`)

// KEYS: job, active list, terminal set.
// ARGV: id, state, field, value, now, job key prefix, age field, count field.
var finishScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state then
  return -1
end
if state ~= "active" then
  return 0
end

local now = tonumber(ARGV[5])
redis.call("HSET", KEYS[1], "state", ARGV[2], ARGV[3], ARGV[4], "finishedAt", ARGV[5])
redis.call("LREM", KEYS[2], 0, ARGV[1])
redis.call("ZADD", KEYS[3], now, ARGV[1])

local maxAge = tonumber(redis.call("HGET", KEYS[1], ARGV[7]) or "0") or 0
local maxCount = tonumber(redis.call("HGET", KEYS[1], ARGV[8]) or "0") or 0

if maxAge > 0 then
  local cutoff = "(" .. string.format("%d", now - maxAge)
  local stale = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", cutoff)
  for _, id in ipairs(stale) do
    redis.call("DEL", ARGV[6] .. id)
  end
  if #stale > 0 then
    redis.call("ZREMRANGEBYSCORE", KEYS[3], "-inf", cutoff)
  end
end

if maxCount > 0 then
  local excess = redis.call("ZCARD", KEYS[3]) - maxCount
  if excess > 0 then
    local old = redis.call("ZRANGE", KEYS[3], 0, excess - 1)
    for _, id in ipairs(old) do
      redis.call("DEL", ARGV[6] .. id)
    end
    redis.call("ZREMRANGEBYRANK", KEYS[3], 0, excess - 1)
  end
end

return 1
`)

var progressScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state then
  return -1
end
if state ~= "active" then
  return 0
end
redis.call("HSET", KEYS[1], "progress", ARGV[1], "heartbeatAt", ARGV[2])
return 1
`)

var heartbeatScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state then
  return -1
end
if state ~= "active" then
  return 0
end
redis.call("HSET", KEYS[1], "heartbeatAt", ARGV[1])
return 1
`)

var cleanScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
  redis.call("DEL", ARGV[3] .. id)
  redis.call("ZREM", KEYS[1], id)
end
return ids
`)

var drainScript = redis.NewScript(`
local ids = redis.call("LRANGE", KEYS[1], 0, -1)
for _, id in ipairs(ids) do
  redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return #ids
`)
