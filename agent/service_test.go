package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/rag/loader"
	"github.com/BaSui01/paperqa/types"
)

func newTestService(t *testing.T, route string) *Service {
	t.Helper()
	oracle := newScriptedOracle(func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Classify the user's message"):
			return `{"route": "` + route + `", "reason": "test"}`, nil
		case isGradePrompt(prompt):
			return "0.9", nil
		case isSynthesisPrompt(prompt):
			return "synthesized answer", nil
		case isRewritePrompt(prompt):
			return "rewritten", nil
		case isMemoryPrompt(prompt):
			return `{"response_type": "list", "content": "memory reply"}`, nil
		default:
			return "general reply", nil
		}
	})

	index := buildIndexWithDocs(t, testDocs)
	router := NewRouter(oracle, zap.NewNop())
	pipeline := NewPipeline(index, oracle, DefaultPipelineConfig(), nil, zap.NewNop())
	return NewService(router, pipeline, oracle, index, loader.NewRegistry(), nil, zap.NewNop())
}

func TestServiceKnowledgeBaseRoute(t *testing.T) {
	svc := newTestService(t, "knowledge_base")

	answer, err := svc.AnswerQuestion(context.Background(), "", "How does attention work?")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if answer.Route != RouteKnowledgeBase {
		t.Errorf("expected knowledge_base route, got %s", answer.Route)
	}
	if answer.ThreadID == "" {
		t.Error("expected a generated thread id")
	}
	if answer.Text != "synthesized answer" {
		t.Errorf("unexpected answer %q", answer.Text)
	}

	// 问答双方都应进入会话历史
	turns, err := svc.ThreadTurns(answer.ThreadID)
	if err != nil {
		t.Fatalf("thread turns failed: %v", err)
	}
	if len(turns) != 2 || turns[0].Role != TurnUser || turns[1].Role != TurnAssistant {
		t.Errorf("unexpected turns: %+v", turns)
	}
}

func TestServiceGeneralRoute(t *testing.T) {
	svc := newTestService(t, "general")

	answer, err := svc.AnswerQuestion(context.Background(), "", "hello there")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if answer.Route != RouteGeneral {
		t.Errorf("expected general route, got %s", answer.Route)
	}
	if answer.Text != "general reply" {
		t.Errorf("unexpected answer %q", answer.Text)
	}
	if len(answer.References) != 0 {
		t.Error("general answers must not carry references")
	}
}

func isMemoryPrompt(prompt string) bool {
	return strings.Contains(prompt, "Conversation History:")
}

func TestServiceMemoryRoute(t *testing.T) {
	var memoryPrompts []string
	oracle := newScriptedOracle(func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Classify the user's message"):
			return `{"route": "memory", "reason": "test"}`, nil
		case isMemoryPrompt(prompt):
			memoryPrompts = append(memoryPrompts, prompt)
			return `{"response_type": "count", "content": "You have asked 1 question so far."}`, nil
		default:
			return "general reply", nil
		}
	})
	index := buildIndexWithDocs(t, testDocs)
	svc := NewService(NewRouter(oracle, zap.NewNop()),
		NewPipeline(index, oracle, DefaultPipelineConfig(), nil, zap.NewNop()),
		oracle, index, loader.NewRegistry(), nil, zap.NewNop())

	// 空会话不经过生成后端，直接返回固定答复
	first, err := svc.AnswerQuestion(context.Background(), "", "what did I ask before?")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if first.Route != RouteMemory {
		t.Errorf("expected memory route, got %s", first.Route)
	}
	if !strings.Contains(first.Text, "no previous questions") {
		t.Errorf("expected empty-history reply, got %q", first.Text)
	}
	if len(memoryPrompts) != 0 {
		t.Errorf("empty thread must not invoke the backend, got %d calls", len(memoryPrompts))
	}

	// 第二次提问走结构化历史问答，提示词携带完整历史
	second, err := svc.AnswerQuestion(context.Background(), first.ThreadID, "how many questions did I ask?")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if second.Text != "You have asked 1 question so far." {
		t.Errorf("expected structured memory reply, got %q", second.Text)
	}
	if len(memoryPrompts) != 1 {
		t.Fatalf("expected one memory invocation, got %d", len(memoryPrompts))
	}
	if !strings.Contains(memoryPrompts[0], "User: what did I ask before?") {
		t.Errorf("memory prompt missing user history: %q", memoryPrompts[0])
	}
	if !strings.Contains(memoryPrompts[0], "Assistant:") {
		t.Errorf("memory prompt missing assistant turns: %q", memoryPrompts[0])
	}
}

func TestServiceMemoryRouteBackendFailure(t *testing.T) {
	oracle := newScriptedOracle(func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Classify the user's message"):
			return `{"route": "memory", "reason": "test"}`, nil
		case isMemoryPrompt(prompt):
			return "not json at all", nil
		default:
			return "general reply", nil
		}
	})
	index := buildIndexWithDocs(t, testDocs)
	svc := NewService(NewRouter(oracle, zap.NewNop()),
		NewPipeline(index, oracle, DefaultPipelineConfig(), nil, zap.NewNop()),
		oracle, index, loader.NewRegistry(), nil, zap.NewNop())

	first, err := svc.AnswerQuestion(context.Background(), "", "what did I ask?")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	// 结构化回答解析失败时回退到本地问题清单
	second, err := svc.AnswerQuestion(context.Background(), first.ThreadID, "list my questions")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if !strings.Contains(second.Text, "what did I ask?") {
		t.Errorf("expected fallback question list, got %q", second.Text)
	}
}

func TestServiceEmptyQuestion(t *testing.T) {
	svc := newTestService(t, "knowledge_base")

	_, err := svc.AnswerQuestion(context.Background(), "", "   ")
	if !types.IsCode(err, types.ErrInvalidRequest) {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestServiceResetThread(t *testing.T) {
	svc := newTestService(t, "general")

	answer, err := svc.AnswerQuestion(context.Background(), "", "hello")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}

	if err := svc.ResetThread(answer.ThreadID); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if err := svc.ResetThread(answer.ThreadID); !types.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND on second reset, got %v", err)
	}
	if _, err := svc.ThreadTurns(answer.ThreadID); !types.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND for cleared thread, got %v", err)
	}
}

func TestServiceIndexLifecycle(t *testing.T) {
	svc := newTestService(t, "knowledge_base")

	ready, docs, chunks := svc.IndexStatus()
	if !ready || docs != 3 || chunks == 0 {
		t.Fatalf("unexpected initial status: ready=%v docs=%d chunks=%d", ready, docs, chunks)
	}

	svc.ResetIndex()
	ready, _, _ = svc.IndexStatus()
	if ready {
		t.Error("expected index not ready after reset")
	}

	answer, err := svc.AnswerQuestion(context.Background(), "", "what does the paper say?")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if answer.Text != NoDocumentsMessage {
		t.Errorf("expected no-documents notice, got %q", answer.Text)
	}
}

func TestServiceResetIndexRemovesSnapshot(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, "knowledge_base").WithIndexDir(dir)

	if err := svc.RebuildIndex(context.Background(), testDocs); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "index.json")); err != nil {
		t.Fatalf("expected persisted snapshot after rebuild: %v", err)
	}

	svc.ResetIndex()
	if _, err := os.Stat(filepath.Join(dir, "index.json")); !os.IsNotExist(err) {
		t.Error("reset must remove the persisted snapshot")
	}
}
