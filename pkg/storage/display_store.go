package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
)

// DisplayStore 显示屏信息存储，键为大写地址
type DisplayStore struct {
	displays sync.Map
}

// NewDisplayStore 创建显示屏存储
func NewDisplayStore() *DisplayStore {
	return &DisplayStore{}
}

func storeKey(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// Set 存储显示屏信息
func (s *DisplayStore) Set(display *DisplayInfo) {
	s.displays.Store(storeKey(display.Address), display)
}

// Get 获取显示屏信息
func (s *DisplayStore) Get(address string) (*DisplayInfo, bool) {
	value, exists := s.displays.Load(storeKey(address))
	if !exists {
		return nil, false
	}
	display, ok := value.(*DisplayInfo)
	return display, ok
}

// GetOrCreate 获取显示屏信息，不存在时创建
func (s *DisplayStore) GetOrCreate(address, name string) *DisplayInfo {
	value, _ := s.displays.LoadOrStore(storeKey(address), NewDisplayInfo(address, name))
	return value.(*DisplayInfo)
}

// Delete 删除显示屏信息
func (s *DisplayStore) Delete(address string) {
	s.displays.Delete(storeKey(address))
}

// List 按地址排序返回所有显示屏的副本
func (s *DisplayStore) List() []*DisplayInfo {
	var displays []*DisplayInfo
	s.displays.Range(func(_, value interface{}) bool {
		if display, ok := value.(*DisplayInfo); ok {
			displays = append(displays, display.Clone())
		}
		return true
	})
	sort.Slice(displays, func(i, j int) bool { return displays[i].Address < displays[j].Address })
	return displays
}

// Count 获取显示屏总数
func (s *DisplayStore) Count() int {
	count := 0
	s.displays.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// CountByState 统计处于某状态的显示屏数量
func (s *DisplayStore) CountByState(state constants.ConnectionState) int {
	count := 0
	s.displays.Range(func(_, value interface{}) bool {
		if display, ok := value.(*DisplayInfo); ok && display.GetState() == state {
			count++
		}
		return true
	})
	return count
}
