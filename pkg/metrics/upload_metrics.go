package metrics

import (
	"sync"
	"time"
)

// UploadMetrics 上传性能指标
type UploadMetrics struct {
	mu              sync.RWMutex
	uploadCounts    map[string]uint64          // 按内容类型的成功次数
	failureCounts   map[string]uint64          // 按错误码的失败次数
	uploadDurations map[string][]time.Duration // 按内容类型的耗时
	bytesSent       uint64
	connectionCount uint64
	lastResetTime   time.Time
}

// 每种类型只保留最近的耗时样本
const maxDurationSamples = 256

var globalMetrics = newUploadMetrics()

func newUploadMetrics() *UploadMetrics {
	return &UploadMetrics{
		uploadCounts:    make(map[string]uint64),
		failureCounts:   make(map[string]uint64),
		uploadDurations: make(map[string][]time.Duration),
		lastResetTime:   time.Now(),
	}
}

// RecordUpload 记录一次成功上传
func RecordUpload(kind string, bytes int, duration time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.uploadCounts[kind]++
	globalMetrics.bytesSent += uint64(bytes)

	samples := append(globalMetrics.uploadDurations[kind], duration)
	if len(samples) > maxDurationSamples {
		samples = samples[len(samples)-maxDurationSamples:]
	}
	globalMetrics.uploadDurations[kind] = samples
}

// IncrementFailureCount 增加失败计数
func IncrementFailureCount(code string) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.failureCounts[code]++
}

// SetConnectionCount 设置已连接设备数
func SetConnectionCount(count uint64) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.connectionCount = count
}

// GetUploadCount 获取某类型的成功次数
func GetUploadCount(kind string) uint64 {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()
	return globalMetrics.uploadCounts[kind]
}

// GetFailureCount 获取某错误码的失败次数
func GetFailureCount(code string) uint64 {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()
	return globalMetrics.failureCounts[code]
}

// GetBytesSent 获取累计发送字节数
func GetBytesSent() uint64 {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()
	return globalMetrics.bytesSent
}

func sum(m map[string]uint64) uint64 {
	var total uint64
	for _, v := range m {
		total += v
	}
	return total
}

func copyCounts(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GetMetricsSummary 获取指标摘要
func GetMetricsSummary() map[string]interface{} {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	// 计算平均耗时
	avgDurations := make(map[string]string)
	for kind, samples := range globalMetrics.uploadDurations {
		if len(samples) > 0 {
			var total time.Duration
			for _, d := range samples {
				total += d
			}
			avgDurations[kind] = (total / time.Duration(len(samples))).String()
		}
	}

	return map[string]interface{}{
		"uploadCounts":    copyCounts(globalMetrics.uploadCounts),
		"failureCounts":   copyCounts(globalMetrics.failureCounts),
		"avgDurations":    avgDurations,
		"totalUploads":    sum(globalMetrics.uploadCounts),
		"totalFailures":   sum(globalMetrics.failureCounts),
		"bytesSent":       globalMetrics.bytesSent,
		"connectionCount": globalMetrics.connectionCount,
		"uptime":          time.Since(globalMetrics.lastResetTime).String(),
		"lastResetTime":   globalMetrics.lastResetTime.Format("2006-01-02 15:04:05"),
	}
}

// ResetMetrics 重置指标
func ResetMetrics() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.uploadCounts = make(map[string]uint64)
	globalMetrics.failureCounts = make(map[string]uint64)
	globalMetrics.uploadDurations = make(map[string][]time.Duration)
	globalMetrics.bytesSent = 0
	globalMetrics.lastResetTime = time.Now()
}
