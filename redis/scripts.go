package redis

import "github.com/redis/go-redis/v9"

// The five atomically evaluated scripts are the wire contract between engine
// and store: every compound mutation happens inside one of them so a partial
// effect is never visible to another process.

// putScript appends one item and increments the unfinished-task counter.
// Used when capacity is already reserved (a semaphore token is held) or the
// queue is unbounded.
// KEYS: main, unfinished-tasks. ARGV: item.
var putScript = redis.NewScript(`
redis.call('LPUSH', KEYS[1], ARGV[1])
redis.call('INCR', KEYS[2])
return 1
`)

// putNoWaitScript checks capacity, then appends and increments, reporting
// full (0) without mutating when no room exists.
// KEYS: main, unfinished-tasks. ARGV: item, maxsize.
var putNoWaitScript = redis.NewScript(`
local maxsize = tonumber(ARGV[2])
if maxsize > 0 and redis.call('LLEN', KEYS[1]) >= maxsize then
	return 0
end
redis.call('LPUSH', KEYS[1], ARGV[1])
redis.call('INCR', KEYS[2])
return 1
`)

// getNoWaitScript pops the oldest item and, when bounded, returns one token
// to the semaphore in the same atomic unit. Empty queue returns nil without
// mutating.
// KEYS: main, semaphore. ARGV: maxsize, token.
var getNoWaitScript = redis.NewScript(`
local item = redis.call('RPOP', KEYS[1])
if item == false then
	return false
end
if tonumber(ARGV[1]) > 0 then
	redis.call('LPUSH', KEYS[2], ARGV[2])
end
return item
`)

// taskDoneScript decrements the unfinished-task counter, refusing to go below
// zero, and publishes the no-remaining-tasks notification when it reaches
// exactly zero.
// KEYS: unfinished-tasks, join-channel. ARGV: done message, underflow error.
var taskDoneScript = redis.NewScript(`
local remaining = tonumber(redis.call('GET', KEYS[1]))
if remaining == nil or remaining <= 0 then
	return redis.error_reply(ARGV[2])
end
remaining = redis.call('DECR', KEYS[1])
if remaining == 0 then
	redis.call('PUBLISH', KEYS[2], ARGV[1])
end
return remaining
`)

// initializeScript pre-fills the semaphore with one token per free slot, only
// if the semaphore does not exist yet. Run solely by the initialization-lock
// winner.
// KEYS: main, semaphore. ARGV: maxsize, token.
var initializeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 0 then
	local tokens = tonumber(ARGV[1]) - redis.call('LLEN', KEYS[1])
	for i = 1, tokens do
		redis.call('LPUSH', KEYS[2], ARGV[2])
	end
end
return 1
`)

// releaseLockScript deletes the initialization lock only while it still holds
// the value this process set, so a lock that expired and was re-acquired by
// another process is never released from here.
// KEYS: semaphore-lock. ARGV: lock value.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
