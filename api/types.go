// Package api 定义 HTTP 接口的请求与响应结构。
package api

import "github.com/BaSui01/paperqa/agent"

// QueryRequest 问答请求
type QueryRequest struct {
	// Question 用户问题
	Question string `json:"question"`
	// ThreadID 会话标识，空则新建会话
	ThreadID string `json:"thread_id,omitempty"`
}

// QueryResponse 问答响应
type QueryResponse struct {
	Answer     string            `json:"answer"`
	Route      string            `json:"route"`
	References []agent.Reference `json:"references,omitempty"`
	ThreadID   string            `json:"thread_id"`
	Degraded   bool              `json:"degraded,omitempty"`
}

// RebuildRequest 重建索引请求
type RebuildRequest struct {
	// Dir 论文目录路径
	Dir string `json:"dir"`
}

// IndexStatusResponse 索引状态
type IndexStatusResponse struct {
	Ready     bool `json:"ready"`
	Documents int  `json:"documents"`
	Chunks    int  `json:"chunks"`
}

// ThreadResponse 会话历史与状态
type ThreadResponse struct {
	ThreadID     string       `json:"thread_id"`
	MessageCount int          `json:"message_count"`
	HasHistory   bool         `json:"has_history"`
	Turns        []agent.Turn `json:"turns"`
}
