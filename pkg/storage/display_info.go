package storage

import (
	"sync"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
)

// 每个显示屏保留的状态变更条数
const maxStateHistory = 10

// StateChangeEvent 链路状态变更
type StateChangeEvent struct {
	Address   string                    `json:"address"`
	OldState  constants.ConnectionState `json:"old_state"`
	NewState  constants.ConnectionState `json:"new_state"`
	Timestamp time.Time                 `json:"timestamp"`
}

// DisplayInfo 显示屏运行时信息
type DisplayInfo struct {
	Address      string                    `json:"address"`
	Name         string                    `json:"name"`
	State        constants.ConnectionState `json:"state"`
	LastSeen     time.Time                 `json:"last_seen"`
	LastUpload   *UploadRecord             `json:"last_upload,omitempty"`
	StateHistory []StateChangeEvent        `json:"state_history"`

	mutex sync.RWMutex
}

// NewDisplayInfo 创建显示屏信息
func NewDisplayInfo(address, name string) *DisplayInfo {
	return &DisplayInfo{
		Address:      address,
		Name:         name,
		State:        constants.StateDisconnected,
		LastSeen:     time.Now(),
		StateHistory: make([]StateChangeEvent, 0, maxStateHistory),
	}
}

// SetState 更新链路状态，状态未变化时忽略
func (d *DisplayInfo) SetState(state constants.ConnectionState) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.State == state {
		return false
	}
	d.StateHistory = append(d.StateHistory, StateChangeEvent{
		Address:   d.Address,
		OldState:  d.State,
		NewState:  state,
		Timestamp: time.Now(),
	})
	if len(d.StateHistory) > maxStateHistory {
		d.StateHistory = d.StateHistory[len(d.StateHistory)-maxStateHistory:]
	}
	d.State = state
	d.LastSeen = time.Now()
	return true
}

// SetLastUpload 记录最近一次上传
func (d *DisplayInfo) SetLastUpload(rec UploadRecord) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.LastUpload = &rec
	d.LastSeen = time.Now()
}

// SetName 更新广播名，空名字不覆盖已有值
func (d *DisplayInfo) SetName(name string) {
	if name == "" {
		return
	}
	d.mutex.Lock()
	d.Name = name
	d.LastSeen = time.Now()
	d.mutex.Unlock()
}

// GetState 获取链路状态
func (d *DisplayInfo) GetState() constants.ConnectionState {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.State
}

// Clone 返回不共享可变字段的副本
func (d *DisplayInfo) Clone() *DisplayInfo {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	clone := &DisplayInfo{
		Address:      d.Address,
		Name:         d.Name,
		State:        d.State,
		LastSeen:     d.LastSeen,
		StateHistory: append([]StateChangeEvent(nil), d.StateHistory...),
	}
	if d.LastUpload != nil {
		rec := *d.LastUpload
		clone.LastUpload = &rec
	}
	return clone
}
