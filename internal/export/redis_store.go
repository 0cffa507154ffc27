package export

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix    = "exportd:job:"
	completedSetKey = "exportd:jobs:completed"
)

// RedisStore persists jobs as one hash per job, with a sorted set of
// terminal jobs scored by completion time for retention sweeps. Used when
// several instances share job state.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func jobKey(id string) string { return jobKeyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, j *Job) error {
	ok, err := s.client.HSetNX(ctx, jobKey(j.ID), "id", j.ID).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("export: job %s already exists", j.ID)
	}
	return s.client.HSet(ctx, jobKey(j.ID), map[string]interface{}{
		"status":       string(j.Status),
		"progress":     j.Progress,
		"error":        j.Error,
		"download_url": j.DownloadURL,
		"resolution":   j.Resolution,
		"fps":          j.FPS,
		"quality":      j.Quality,
		"created_at":   j.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   j.UpdatedAt.UTC().Format(time.RFC3339),
	}).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return jobFromFields(fields), nil
}

// UpdateStatus runs under WATCH so two workers cannot race a job out of its
// lifecycle order.
func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	key := jobKey(id)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "status").Result()
		if err == redis.Nil {
			return fmt.Errorf("export: job %s not found", id)
		}
		if err != nil {
			return err
		}
		if !CanTransition(Status(current), status) {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]interface{}{
				"status":     string(status),
				"error":      errMsg,
				"updated_at": now.Format(time.RFC3339),
			})
			if status.Terminal() {
				pipe.HSet(ctx, key, "completed_at", now.Format(time.RFC3339))
				pipe.ZAdd(ctx, completedSetKey, redis.Z{Score: float64(now.Unix()), Member: id})
			}
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) UpdateProgress(ctx context.Context, id string, progress int) error {
	key := jobKey(id)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "progress").Int()
		if err != nil && err != redis.Nil {
			return err
		}
		if progress <= current {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]interface{}{
				"progress":   progress,
				"updated_at": time.Now().UTC().Format(time.RFC3339),
			})
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) SetDownloadURL(ctx context.Context, id, url string) error {
	return s.client.HSet(ctx, jobKey(id), map[string]interface{}{
		"download_url": url,
		"updated_at":   time.Now().UTC().Format(time.RFC3339),
	}).Err()
}

func (s *RedisStore) ListExpired(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	ids, err := s.client.ZRangeByScore(ctx, completedSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	var jobs []*Job
	for _, id := range ids {
		j, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if j != nil {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, jobKey(id))
	pipe.ZRem(ctx, completedSetKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func jobFromFields(fields map[string]string) *Job {
	j := &Job{
		ID:          fields["id"],
		Status:      Status(fields["status"]),
		Error:       fields["error"],
		DownloadURL: fields["download_url"],
		Resolution:  fields["resolution"],
		Quality:     fields["quality"],
	}
	j.Progress, _ = strconv.Atoi(fields["progress"])
	j.FPS, _ = strconv.Atoi(fields["fps"])
	j.CreatedAt, _ = time.Parse(time.RFC3339, fields["created_at"])
	j.UpdatedAt, _ = time.Parse(time.RFC3339, fields["updated_at"])
	if v, ok := fields["completed_at"]; ok && v != "" {
		t, _ := time.Parse(time.RFC3339, v)
		j.CompletedAt = &t
	}
	return j
}
