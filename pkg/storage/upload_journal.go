package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// UploadRecord 一次上传的日志记录
type UploadRecord struct {
	ID         string                 `json:"id"`
	Address    string                 `json:"address"`
	Kind       string                 `json:"kind"`
	Status     constants.UploadStatus `json:"status"`
	Bytes      int                    `json:"bytes"`
	Writes     int                    `json:"writes"`
	DurationMs int64                  `json:"duration_ms"`
	Error      string                 `json:"error,omitempty"`
	ErrorCode  string                 `json:"error_code,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Journal 上传日志：每个显示屏最近发送了什么
type Journal interface {
	Record(ctx context.Context, rec UploadRecord) error
	Last(ctx context.Context, address string) (*UploadRecord, error)
	History(ctx context.Context, address string, limit int) ([]UploadRecord, error)
}

// DefaultMaxHistory 每个显示屏默认保留的记录数
const DefaultMaxHistory = 50

// MemoryJournal 进程内上传日志
type MemoryJournal struct {
	mu         sync.RWMutex
	records    map[string][]UploadRecord // 新记录在前
	maxHistory int
}

// NewMemoryJournal 创建进程内上传日志
func NewMemoryJournal(maxHistory int) *MemoryJournal {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &MemoryJournal{
		records:    make(map[string][]UploadRecord),
		maxHistory: maxHistory,
	}
}

// Record 写入一条记录
func (j *MemoryJournal) Record(_ context.Context, rec UploadRecord) error {
	key := storeKey(rec.Address)
	j.mu.Lock()
	defer j.mu.Unlock()

	list := append([]UploadRecord{rec}, j.records[key]...)
	if len(list) > j.maxHistory {
		list = list[:j.maxHistory]
	}
	j.records[key] = list
	return nil
}

// Last 最近一条记录，没有时返回nil
func (j *MemoryJournal) Last(_ context.Context, address string) (*UploadRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	list := j.records[storeKey(address)]
	if len(list) == 0 {
		return nil, nil
	}
	rec := list[0]
	return &rec, nil
}

// History 按时间倒序返回最多limit条记录
func (j *MemoryJournal) History(_ context.Context, address string, limit int) ([]UploadRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	list := j.records[storeKey(address)]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	return append([]UploadRecord(nil), list[:limit]...), nil
}

// RedisJournal 基于Redis列表的上传日志
// 键：<prefix>journal:<ADDRESS>，LPUSH写入，LTRIM限制长度
type RedisJournal struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxHistory int
}

// NewRedisJournal 创建Redis上传日志
func NewRedisJournal(client *redis.Client, prefix string, ttl time.Duration, maxHistory int) *RedisJournal {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &RedisJournal{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		maxHistory: maxHistory,
	}
}

func (j *RedisJournal) key(address string) string {
	return j.prefix + "journal:" + storeKey(address)
}

// Record 写入一条记录
func (j *RedisJournal) Record(ctx context.Context, rec UploadRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageFailed, "序列化上传记录失败", err)
	}

	key := j.key(rec.Address)
	_, err = j.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(j.maxHistory-1))
		if j.ttl > 0 {
			pipe.Expire(ctx, key, j.ttl)
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageFailed, "写入上传记录失败", err)
	}
	return nil
}

// Last 最近一条记录，没有时返回nil
func (j *RedisJournal) Last(ctx context.Context, address string) (*UploadRecord, error) {
	data, err := j.client.LIndex(ctx, j.key(address), 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailed, "读取上传记录失败", err)
	}

	var rec UploadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailed, "解析上传记录失败", err)
	}
	return &rec, nil
}

// History 按时间倒序返回最多limit条记录
func (j *RedisJournal) History(ctx context.Context, address string, limit int) ([]UploadRecord, error) {
	if limit <= 0 || limit > j.maxHistory {
		limit = j.maxHistory
	}
	items, err := j.client.LRange(ctx, j.key(address), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailed, "读取上传历史失败", err)
	}

	records := make([]UploadRecord, 0, len(items))
	for _, item := range items {
		var rec UploadRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageFailed, "解析上传记录失败", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
