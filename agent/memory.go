package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/paperqa/types"
)

// TurnRole 会话轮次角色
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// Turn 会话中的一轮
type Turn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ThreadStore 内存态会话存储。进程重启即丢失，符合会话语义。
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string][]Turn
}

// NewThreadStore 创建会话存储
func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: make(map[string][]Turn)}
}

// NewThreadID 生成新的会话标识
func NewThreadID() string {
	return uuid.NewString()
}

// Append 向会话追加一轮，会话不存在时自动创建
func (s *ThreadStore) Append(threadID string, role TurnRole, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Turns 返回会话的全部轮次副本，未知会话返回空切片
func (s *ThreadStore) Turns(threadID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.threads[threadID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Exists 报告会话是否存在
func (s *ThreadStore) Exists(threadID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[threadID]
	return ok
}

// Clear 删除会话，会话不存在时返回 NOT_FOUND
func (s *ThreadStore) Clear(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return types.NewError(types.ErrNotFound, "thread not found")
	}
	delete(s.threads, threadID)
	return nil
}

// Len 返回活跃会话数
func (s *ThreadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}
