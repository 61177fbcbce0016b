package redis

import goredis "github.com/redis/go-redis/v9"

// KEYS[1] ready zset, KEYS[2] claimed zset. ARGV[1] is always the job key
// prefix and ARGV[2] the job id or a score in unix microseconds. Job hashes
// share the hash tag of the sets, so the scripts stay on one cluster slot.

var enqueueScript = goredis.NewScript(`
local key = ARGV[1] .. ARGV[2]
if redis.call('EXISTS', key) == 1 then
	return 0
end
redis.call('HSET', key,
	'id', ARGV[2],
	'run_id', ARGV[3],
	'step_id', ARGV[4],
	'payload', ARGV[5],
	'available_at', ARGV[6],
	'score', ARGV[7],
	'attempts', ARGV[8],
	'max_attempts', ARGV[9])
redis.call('ZADD', KEYS[1], ARGV[7], ARGV[2])
return 1
`)

var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[2], ARGV[2], id)
return redis.call('HGETALL', ARGV[1] .. id)
`)

var ackScript = goredis.NewScript(`
local existed = redis.call('DEL', ARGV[1] .. ARGV[2])
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[2])
return existed
`)

var failScript = goredis.NewScript(`
local key = ARGV[1] .. ARGV[2]
if redis.call('EXISTS', key) == 0 then
	return 0
end
redis.call('HINCRBY', key, 'attempts', 1)
redis.call('HSET', key, 'available_at', ARGV[3], 'score', ARGV[4])
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[2])
return 1
`)

var releaseStaleScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[2])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[2], id)
	local score = redis.call('HGET', ARGV[1] .. id, 'score')
	if score then
		redis.call('ZADD', KEYS[1], score, id)
	end
end
return #ids
`)
