package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/liqtrade/offer-extractor/constants"
	"github.com/liqtrade/offer-extractor/internal/entity"
)

// jobTTL bounds how long finished jobs stay readable. The store is a
// lifecycle tracker, not an archive; the repository package owns durability.
const jobTTL = 24 * time.Hour

// terminalWrite rejects the write when the job already reached a terminal
// status, atomically on the Redis side.
var terminalWrite = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'status')
if s == 'done' or s == 'failed' then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'payload', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisStore backs the job tracker with Redis so status survives process
// restarts and multiple workers can share one view of job state.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func jobKey(jobID string) string { return "offer:job:" + jobID }

func (s *RedisStore) Create(ctx context.Context, jobID string) error {
	ok, err := s.rdb.HSetNX(ctx, jobKey(jobID), "status", string(constants.JobStatusQueued)).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", jobID, err)
	}
	if ok {
		s.rdb.Expire(ctx, jobKey(jobID), jobTTL)
	}
	return nil
}

func (s *RedisStore) MarkProcessing(ctx context.Context, jobID string) error {
	return s.write(ctx, jobID, constants.JobStatusProcessing, "")
}

func (s *RedisStore) Complete(ctx context.Context, jobID string, result *entity.JobResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result for job %s: %w", jobID, err)
	}
	return s.write(ctx, jobID, constants.JobStatusDone, string(payload))
}

func (s *RedisStore) Fail(ctx context.Context, jobID string, cause string) error {
	return s.write(ctx, jobID, constants.JobStatusFailed, cause)
}

func (s *RedisStore) write(ctx context.Context, jobID string, status constants.JobStatus, payload string) error {
	applied, err := terminalWrite.Run(ctx, s.rdb,
		[]string{jobKey(jobID)},
		string(status), payload, int(jobTTL.Seconds()),
	).Int()
	if err != nil {
		return fmt.Errorf("write job %s status %s: %w", jobID, status, err)
	}
	if applied == 0 {
		return ErrTerminal
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (Job, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return Job{}, false, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return Job{}, false, nil
	}

	job := Job{ID: jobID, Status: constants.JobStatus(fields["status"])}
	switch job.Status {
	case constants.JobStatusDone:
		var result entity.JobResult
		if err := json.Unmarshal([]byte(fields["payload"]), &result); err != nil {
			return Job{}, false, fmt.Errorf("decode result for job %s: %w", jobID, err)
		}
		job.Result = &result
	case constants.JobStatusFailed:
		job.Error = fields["payload"]
	}
	return job, true, nil
}
