package cel

import (
	"context"
	"strings"
	"testing"
)

func TestEvaluator_CompileAndEvaluate(t *testing.T) {
	t.Parallel()

	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	prg, err := ev.CompilePolicyPackCondition(`tool == "send_email" && argValue.contains("bcc")`)
	if err != nil {
		t.Fatalf("CompilePolicyPackCondition() error = %v", err)
	}

	matched, err := EvaluatePolicyPackCondition(context.Background(), prg, "send_email", "body", "please bcc the board")
	if err != nil {
		t.Fatalf("EvaluatePolicyPackCondition() error = %v", err)
	}
	if !matched {
		t.Error("expected condition to match")
	}

	matched, err = EvaluatePolicyPackCondition(context.Background(), prg, "read_file", "body", "nothing interesting")
	if err != nil {
		t.Fatalf("EvaluatePolicyPackCondition() error = %v", err)
	}
	if matched {
		t.Error("expected condition not to match a different tool")
	}
}

func TestEvaluator_CompilePolicyPackCondition_Empty(t *testing.T) {
	t.Parallel()

	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	if _, err := ev.CompilePolicyPackCondition(""); err == nil {
		t.Fatal("expected error for empty expression")
	}
}

func TestEvaluator_CompilePolicyPackCondition_TooLong(t *testing.T) {
	t.Parallel()

	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	expr := `tool == "` + strings.Repeat("a", maxExpressionLength) + `"`
	if _, err := ev.CompilePolicyPackCondition(expr); err == nil {
		t.Fatal("expected error for over-length expression")
	}
}

func TestEvaluator_CompilePolicyPackCondition_TooDeeplyNested(t *testing.T) {
	t.Parallel()

	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	expr := strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1)
	if _, err := ev.CompilePolicyPackCondition(expr); err == nil {
		t.Fatal("expected error for over-nested expression")
	}
}

func TestEvaluator_CompilePolicyPackCondition_InvalidSyntax(t *testing.T) {
	t.Parallel()

	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	if _, err := ev.CompilePolicyPackCondition("tool == "); err == nil {
		t.Fatal("expected compilation error for invalid syntax")
	}
}

func TestEvaluator_CompilePolicyPackCondition_NonBooleanResult(t *testing.T) {
	t.Parallel()

	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	prg, err := ev.CompilePolicyPackCondition(`tool`)
	if err != nil {
		t.Fatalf("CompilePolicyPackCondition() error = %v", err)
	}

	if _, err := EvaluatePolicyPackCondition(context.Background(), prg, "send_email", "", ""); err == nil {
		t.Fatal("expected error for non-boolean result")
	}
}
