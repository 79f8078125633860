package redis

import "github.com/redis/go-redis/v9"

// Every queue script receives the key prefix as ARGV[1] and derives the
// per-task, per-job and per-group keys from it. Keeping a {hash tag} in the
// prefix places all of them in one cluster slot.
//
// Timestamps are unix milliseconds. They stay below 2^53 and print as plain
// integers, so they survive the Lua number to Redis string conversion.

// luaHelpers is prepended to the transition scripts.
const luaHelpers = `
local function task_key(p, id) return p .. 'task:' .. id end
local function dep_key(p, group) return p .. 'dep:' .. group end
local function job_key(p, job) return p .. 'job:' .. job .. ':tasks' end

-- job_check marks the job done the first time no task of it is pending,
-- processing or retrying, and queues its announcement in the completions
-- set. It returns 1 only for that first time.
local function job_check(p, job, now)
  local ids = redis.call('ZRANGE', job_key(p, job), 0, -1)
  if #ids == 0 then return 0 end
  for _, id in ipairs(ids) do
    local st = redis.call('HGET', task_key(p, id), 'status')
    if st == 'pending' or st == 'processing' or st == 'retrying' then
      return 0
    end
  end
  if redis.call('SET', p .. 'job:' .. job .. ':done', now, 'NX') then
    redis.call('SADD', p .. 'completions', job)
    return 1
  end
  return 0
end

-- fail_leader_dep lets followers of a permanently failed leader fail fast
-- instead of waiting forever.
local function fail_leader_dep(p, id, dtype, group)
  if dtype ~= 'leader' then return end
  local dkey = dep_key(p, group)
  if redis.call('HGET', dkey, 'leader_task_id') == id then
    redis.call('HSET', dkey, 'failed', 1)
  end
end

-- record_failure resolves one processing attempt as retrying or failed.
-- Rate-limit failures neither count against nor exhaust the budget.
local function record_failure(p, id, f, err, is_rl, max_retries, now)
  local tkey = task_key(p, id)
  local retries = tonumber(f[5]) or 0
  if not is_rl then retries = retries + 1 end
  redis.call('ZREM', p .. 'processing', id)
  redis.call('HDEL', tkey, 'lease_expires_at')
  if (not is_rl) and retries >= max_retries then
    redis.call('ZADD', p .. 'failed', now, id)
    redis.call('HSET', tkey, 'status', 'failed', 'retry_count', retries,
      'last_error', err, 'completed_at', now)
    fail_leader_dep(p, id, f[3], f[4])
    return 'failed'
  end
  redis.call('ZADD', p .. 'retry', now, id)
  redis.call('HSET', tkey, 'status', 'retrying', 'retry_count', retries, 'last_error', err)
  return 'retrying'
end
`

// submitScript registers a pending task.
// ARGV: prefix, task_id, job_id, dependency_group, dependency_type, payload,
// score, now.
// Returns 1 when stored, 0 when the task id already exists.
var submitScript = redis.NewScript(luaHelpers + `
local p = ARGV[1]
local id, job, group, dtype = ARGV[2], ARGV[3], ARGV[4], ARGV[5]
local tkey = task_key(p, id)
if redis.call('EXISTS', tkey) == 1 then return 0 end

redis.call('HSET', tkey,
  'task_id', id, 'job_id', job,
  'dependency_group', group, 'dependency_type', dtype,
  'payload', ARGV[6], 'status', 'pending', 'retry_count', 0,
  'cancelled', 0, 'created_at', ARGV[8], 'submit_score', ARGV[7])
redis.call('ZADD', p .. 'pending', ARGV[7], id)
redis.call('ZADD', job_key(p, job), ARGV[7], id)
redis.call('SADD', p .. 'jobs', job)
redis.call('DEL', p .. 'job:' .. job .. ':done')
redis.call('SREM', p .. 'completions', job)

if dtype == 'leader' then
  redis.call('HSET', dep_key(p, group),
    'leader_task_id', id, 'completed', 0, 'failed', 0, 'result_path', '')
end
return 1
`)

// getBatchScript checks out up to limit releasable tasks, retry set first.
// ARGV: prefix, limit, page_size, now, lease.
// Returns {checked_out_ids, completed_job_ids}.
var getBatchScript = redis.NewScript(luaHelpers + `
local p = ARGV[1]
local limit = tonumber(ARGV[2])
local depth = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local lease = tonumber(ARGV[5])

local out = {}
local blocked = {}
local touched = {}

local function checkout(set, id, tkey)
  redis.call('ZREM', set, id)
  redis.call('ZADD', p .. 'processing', now + lease, id)
  redis.call('HSET', tkey, 'status', 'processing', 'started_at', now,
    'lease_expires_at', now + lease)
  out[#out + 1] = id
end

-- scan walks set in pages of depth. Blocked followers stay in the set, so
-- the next page starts after the ones this page left behind.
local function scan(set)
  local start = 0
  while #out < limit do
    local ids = redis.call('ZRANGE', set, start, start + depth - 1)
    if #ids == 0 then return end
    for _, id in ipairs(ids) do
      if #out >= limit then return end
      local tkey = task_key(p, id)
      local f = redis.call('HMGET', tkey, 'dependency_type', 'dependency_group', 'job_id')
      local dtype, group = f[1], f[2]
      if not dtype then
        redis.call('ZREM', set, id)
      elseif dtype ~= 'follower' then
        checkout(set, id, tkey)
      elseif blocked[group] then
        start = start + 1
      else
        local dep = redis.call('HMGET', dep_key(p, group), 'completed', 'failed', 'result_path')
        if dep[1] == '1' then
          redis.call('HSET', tkey, 'leader_result_path', dep[3])
          checkout(set, id, tkey)
        elseif dep[2] == '1' then
          redis.call('ZREM', set, id)
          redis.call('ZADD', p .. 'failed', now, id)
          redis.call('HSET', tkey, 'status', 'failed',
            'last_error', 'leader task failed', 'completed_at', now)
          touched[f[3]] = true
        else
          blocked[group] = true
          start = start + 1
        end
      end
    end
    if #ids < depth then return end
  end
end

scan(p .. 'retry')
scan(p .. 'pending')

local done = {}
for job, _ in pairs(touched) do
  if job_check(p, job, now) == 1 then done[#done + 1] = job end
end
return {out, done}
`)

// markCompleteScript resolves a processing task as completed and, for a
// leader, publishes its result to the dependency group in the same step.
// ARGV: prefix, task_id, result, now.
// Returns {code, job_completed, job_id, status}; code -1 not found, -2 not
// processing.
var markCompleteScript = redis.NewScript(luaHelpers + `
local p, id, result = ARGV[1], ARGV[2], ARGV[3]
local now = tonumber(ARGV[4])
local tkey = task_key(p, id)
local f = redis.call('HMGET', tkey, 'status', 'job_id', 'dependency_type', 'dependency_group')
if not f[1] then return {-1, 0, '', ''} end
if f[1] ~= 'processing' then return {-2, 0, f[2], f[1]} end

redis.call('ZREM', p .. 'processing', id)
redis.call('ZADD', p .. 'completed', now, id)
redis.call('HSET', tkey, 'status', 'completed', 'result', result, 'completed_at', now)
redis.call('HDEL', tkey, 'lease_expires_at')

if f[3] == 'leader' then
  local dkey = dep_key(p, f[4])
  if redis.call('HGET', dkey, 'leader_task_id') == id then
    redis.call('HSET', dkey, 'completed', 1, 'result_path', result)
  end
end
return {1, job_check(p, f[2], now), f[2], 'completed'}
`)

// markFailedScript resolves a processing attempt as retrying or failed.
// ARGV: prefix, task_id, error, is_rate_limit (1/0), max_retries, now.
// Returns {code, job_completed, job_id, new_status}.
var markFailedScript = redis.NewScript(luaHelpers + `
local p, id = ARGV[1], ARGV[2]
local now = tonumber(ARGV[6])
local f = redis.call('HMGET', task_key(p, id),
  'status', 'job_id', 'dependency_type', 'dependency_group', 'retry_count')
if not f[1] then return {-1, 0, '', ''} end
if f[1] ~= 'processing' then return {-2, 0, f[2], f[1]} end

local st = record_failure(p, id, f, ARGV[3], ARGV[4] == '1', tonumber(ARGV[5]), now)
return {1, job_check(p, f[2], now), f[2], st}
`)

// reclaimScript fails every processing task whose lease deadline passed.
// ARGV: prefix, now, max_retries.
// Returns {reclaimed_ids, completed_job_ids}.
var reclaimScript = redis.NewScript(luaHelpers + `
local p = ARGV[1]
local now = tonumber(ARGV[2])
local max_retries = tonumber(ARGV[3])
local ids = redis.call('ZRANGEBYSCORE', p .. 'processing', '-inf', now)
local out, jobs, done = {}, {}, {}
for _, id in ipairs(ids) do
  local f = redis.call('HMGET', task_key(p, id),
    'status', 'job_id', 'dependency_type', 'dependency_group', 'retry_count')
  if f[1] == 'processing' then
    record_failure(p, id, f, 'lease expired', false, max_retries, now)
    out[#out + 1] = id
    jobs[f[2]] = true
  else
    redis.call('ZREM', p .. 'processing', id)
  end
end
for job, _ in pairs(jobs) do
  if job_check(p, job, now) == 1 then done[#done + 1] = job end
end
return {out, done}
`)

// cancelJobScript fails the job's pending and retrying tasks.
// ARGV: prefix, job_id, now.
// Returns {code, cancelled, still_processing, job_completed}.
var cancelJobScript = redis.NewScript(luaHelpers + `
local p, job = ARGV[1], ARGV[2]
local now = tonumber(ARGV[3])
local ids = redis.call('ZRANGE', job_key(p, job), 0, -1)
if #ids == 0 then return {-1, 0, 0, 0} end

local cancelled, processing = 0, 0
for _, id in ipairs(ids) do
  local tkey = task_key(p, id)
  local f = redis.call('HMGET', tkey, 'status', 'dependency_type', 'dependency_group')
  if f[1] == 'pending' or f[1] == 'retrying' then
    redis.call('ZREM', p .. 'pending', id)
    redis.call('ZREM', p .. 'retry', id)
    redis.call('ZADD', p .. 'failed', now, id)
    redis.call('HSET', tkey, 'status', 'failed', 'cancelled', 1,
      'last_error', 'cancelled', 'completed_at', now)
    fail_leader_dep(p, id, f[2], f[3])
    cancelled = cancelled + 1
  elseif f[1] == 'processing' then
    processing = processing + 1
  end
end
return {1, cancelled, processing, job_check(p, job, now)}
`)

// cleanupScript removes every record of a job.
// ARGV: prefix, job_id.
// Returns the number of task records removed.
var cleanupScript = redis.NewScript(luaHelpers + `
local p, job = ARGV[1], ARGV[2]
local ids = redis.call('ZRANGE', job_key(p, job), 0, -1)
for _, id in ipairs(ids) do
  local tkey = task_key(p, id)
  local f = redis.call('HMGET', tkey, 'dependency_type', 'dependency_group')
  if f[1] == 'leader' then
    local dkey = dep_key(p, f[2])
    if redis.call('HGET', dkey, 'leader_task_id') == id then
      redis.call('DEL', dkey)
    end
  end
  for _, set in ipairs({'pending', 'retry', 'processing', 'completed', 'failed'}) do
    redis.call('ZREM', p .. set, id)
  end
  redis.call('DEL', tkey)
end
redis.call('DEL', job_key(p, job), p .. 'job:' .. job .. ':done')
redis.call('SREM', p .. 'jobs', job)
redis.call('SREM', p .. 'completions', job)
return #ids
`)

// admitScript is the sliding window admission decision. The window is
// measured on the server clock so every worker host shares one time source.
// KEYS: window set. ARGV: window_ms, limit, token.
// Returns {granted, wait_ms, count}.
var admitScript = redis.NewScript(`
if redis.replicate_commands then redis.replicate_commands() end
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count < limit then
  redis.call('ZADD', KEYS[1], now, ARGV[3])
  redis.call('PEXPIRE', KEYS[1], window)
  return {1, 0, count + 1}
end

local wait = window
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if oldest[2] then wait = tonumber(oldest[2]) + window - now end
if wait < 1 then wait = 1 end
return {0, wait, count}
`)

// windowCountScript counts the tokens inside the trailing window without
// purging anything.
// KEYS: window set. ARGV: window_ms.
var windowCountScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
return redis.call('ZCOUNT', KEYS[1], '(' .. (now - tonumber(ARGV[1])), '+inf')
`)
