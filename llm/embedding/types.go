// Package embedding 提供文本向量化的统一接口与实现。
package embedding

import "context"

// Provider 定义嵌入后端接口。查询与文档分开嵌入，
// 便于后端对两类输入使用不同的指令前缀。
type Provider interface {
	// EmbedQuery 嵌入单条查询文本
	EmbedQuery(ctx context.Context, text string) ([]float64, error)

	// EmbedDocuments 批量嵌入文档文本，返回与输入同序的向量
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)

	// Name 返回 Provider 的唯一标识
	Name() string

	// Dimensions 返回向量维度
	Dimensions() int
}
