package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZakharovNerd/ai-analyst-prototype/internal/sandbox"
)

// scriptedLLM returns queued responses in order.
type scriptedLLM struct {
	responses []string
	calls     int
	err       error
}

func (s *scriptedLLM) Complete(_ context.Context, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.calls >= len(s.responses) {
		return "", fmt.Errorf("unexpected LLM call %d", s.calls+1)
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

// scriptedExecutor returns queued outcomes in order and records the programs
// it was asked to run.
type scriptedExecutor struct {
	outcomes []executorOutcome
	programs []string
}

type executorOutcome struct {
	result *sandbox.Result
	err    error
}

func (s *scriptedExecutor) Execute(_ context.Context, program string) (*sandbox.Result, error) {
	s.programs = append(s.programs, program)
	if len(s.outcomes) == 0 {
		return nil, fmt.Errorf("unexpected execution of %q", program)
	}
	out := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return out.result, out.err
}

type staticSchema string

func (s staticSchema) Schema(context.Context) (string, error) { return string(s), nil }

func newTestPipeline(t *testing.T, model LLMClient, exec QueryExecutor) *Pipeline {
	t.Helper()
	prompts, err := LoadPrompts()
	require.NoError(t, err)

	p, err := New(Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		LLM:      model,
		Executor: exec,
		Schema:   staticSchema("table users (5 rows)"),
		Prompts:  prompts,
	})
	require.NoError(t, err)
	return p
}

func scalarResult(v any) *sandbox.Result {
	return &sandbox.Result{Kind: sandbox.KindScalar, Columns: []string{"n"}, Scalar: v}
}

func TestAnswer_DirectQuestionSkipsExecution(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{responses: []string{
		`{"needs_analysis": false, "reasoning": "greeting", "direct_answer": "Привет! Задайте вопрос о данных."}`,
	}}
	exec := &scriptedExecutor{}

	p := newTestPipeline(t, model, exec)
	s, err := p.Answer(context.Background(), "привет")
	require.NoError(t, err)

	assert.False(t, s.NeedsAnalysis)
	assert.Equal(t, "Привет! Задайте вопрос о данных.", s.Answer)
	assert.Empty(t, exec.programs, "conversational questions must never reach the sandbox")
}

func TestAnswer_DirectQuestionWithoutDirectAnswerIsFormatted(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{responses: []string{
		`{"needs_analysis": false, "reasoning": "greeting"}`,
		`{"answer": "Привет! Чем могу помочь?", "reasoning": "приветствие"}`,
	}}
	exec := &scriptedExecutor{}

	p := newTestPipeline(t, model, exec)
	s, err := p.Answer(context.Background(), "привет")
	require.NoError(t, err)

	assert.False(t, s.NeedsAnalysis)
	assert.Equal(t, "Привет! Чем могу помочь?", s.Answer)
	assert.Equal(t, 2, model.calls, "missing direct_answer falls through to the answer step")
	assert.Empty(t, exec.programs)
}

func TestAnswer_AnalysisSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{responses: []string{
		`{"needs_analysis": true, "reasoning": "count", "sql": "SELECT count(*) AS n FROM users WHERE region = 'Moscow'"}`,
		"В Москве 3 пользователя.",
	}}
	exec := &scriptedExecutor{outcomes: []executorOutcome{
		{result: scalarResult(int64(3))},
	}}

	p := newTestPipeline(t, model, exec)
	s, err := p.Answer(context.Background(), "сколько пользователей в Москве?")
	require.NoError(t, err)

	assert.True(t, s.NeedsAnalysis)
	assert.Equal(t, 0, s.Retries)
	assert.Contains(t, s.Answer, "3")
	require.Len(t, exec.programs, 1)
}

func TestAnswer_RetriesOnceThenSucceeds(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{responses: []string{
		`{"needs_analysis": true, "reasoning": "revenue", "sql": "SELECT sum(amount) FROM orders"}`,
		`{"reasoning": "column is order_amount", "sql": "SELECT sum(order_amount) FROM orders WHERE status = 'completed'"}`,
		"Выручка составила 3200.50.",
	}}
	exec := &scriptedExecutor{outcomes: []executorOutcome{
		{err: &sandbox.ExecError{Err: errors.New(`column "amount" not found`)}},
		{result: scalarResult(3200.50)},
	}}

	p := newTestPipeline(t, model, exec)
	s, err := p.Answer(context.Background(), "какая выручка?")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Retries)
	assert.False(t, s.Exhausted)
	assert.Equal(t, "Выручка составила 3200.50.", s.Answer)
	require.Len(t, exec.programs, 2)
	assert.Contains(t, exec.programs[1], "order_amount")
}

func TestAnswer_ExhaustsAfterThreeExecutions(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{responses: []string{
		`{"needs_analysis": true, "reasoning": "bad", "sql": "SELECT wrong FROM users"}`,
		`{"reasoning": "try again", "sql": "SELECT still_wrong FROM users"}`,
		`{"reasoning": "try again", "sql": "SELECT nope FROM users"}`,
	}}
	exec := &scriptedExecutor{outcomes: []executorOutcome{
		{err: &sandbox.ExecError{Err: errors.New("first failure")}},
		{err: &sandbox.ExecError{Err: errors.New("second failure")}},
		{err: &sandbox.ExecError{Err: errors.New("third failure")}},
	}}

	p := newTestPipeline(t, model, exec)
	s, err := p.Answer(context.Background(), "сложный вопрос")
	require.NoError(t, err)

	assert.True(t, s.Exhausted)
	assert.Equal(t, 3, s.Retries)
	assert.Len(t, exec.programs, 3, "the ceiling allows exactly three executions")
	assert.Equal(t, "Ошибка при выполнении запроса: third failure", s.Answer)
	assert.Equal(t, 3, model.calls, "no answer-formatting call after exhaustion")
}

func TestAnswer_SecurityViolationIsRetried(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{responses: []string{
		`{"needs_analysis": true, "reasoning": "bad", "sql": "DROP TABLE users"}`,
		`{"reasoning": "read only", "sql": "SELECT count(*) FROM users"}`,
		"Всего 5 пользователей.",
	}}
	exec := &scriptedExecutor{outcomes: []executorOutcome{
		{err: &sandbox.SecurityError{Token: "drop", Reason: `denylisted token "drop"`}},
		{result: scalarResult(int64(5))},
	}}

	p := newTestPipeline(t, model, exec)
	s, err := p.Answer(context.Background(), "сколько пользователей?")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Retries)
	assert.Equal(t, "Всего 5 пользователей.", s.Answer)
}

func TestAnswer_UnparseableClassificationDefaultsToAnalysis(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{responses: []string{
		"извините, не могу ответить в формате JSON",
		`{"reasoning": "recovered", "sql": "SELECT count(*) FROM users"}`,
		"Всего 5 пользователей.",
	}}
	// The empty program from the failed parse follows the execution-error
	// path, so the repair step still gets a chance to produce a query.
	exec := &scriptedExecutor{outcomes: []executorOutcome{
		{err: sandbox.ErrNoResult},
		{result: scalarResult(int64(5))},
	}}

	p := newTestPipeline(t, model, exec)
	s, err := p.Answer(context.Background(), "сколько пользователей?")
	require.NoError(t, err)

	assert.True(t, s.NeedsAnalysis)
	assert.Equal(t, "Всего 5 пользователей.", s.Answer)
}

func TestAnswer_ClassifyFailureIsGenerationError(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{err: errors.New("api unavailable")}
	p := newTestPipeline(t, model, &scriptedExecutor{})

	_, err := p.Answer(context.Background(), "сколько пользователей?")
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "classify", genErr.Stage)
}

func TestLoadPrompts_RevenuePolicyIsCompletedOnly(t *testing.T) {
	t.Parallel()

	prompts, err := LoadPrompts()
	require.NoError(t, err)

	// Revenue questions must count completed orders only. The rule lives in
	// the prompts, so both query-producing steps have to carry it.
	for name, text := range map[string]string{
		"classify":   prompts.Classify,
		"regenerate": prompts.Regenerate,
	} {
		assert.Contains(t, text, "Метрики выручки", name)
		assert.Contains(t, text, "со статусом `completed`", name)
	}
}

func TestParseFormatResponse(t *testing.T) {
	t.Parallel()

	f, err := parseFormatResponse(`{"answer": "В Москве 3 пользователя.", "reasoning": "count по региону"}`)
	require.NoError(t, err)
	assert.Equal(t, "В Москве 3 пользователя.", f.Answer)
	assert.Equal(t, "count по региону", f.Reasoning)

	f, err = parseFormatResponse("Просто текст без JSON.")
	require.NoError(t, err)
	assert.Equal(t, "Просто текст без JSON.", f.Answer)

	_, err = parseFormatResponse("   ")
	require.Error(t, err)
}

func TestParseRegenerateResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "json",
			response: `{"reasoning": "fix", "sql": "SELECT 1;"}`,
			want:     "SELECT 1",
		},
		{
			name:     "sql code fence",
			response: "Исправленный запрос:\n```sql\nSELECT count(*) FROM users\n```",
			want:     "SELECT count(*) FROM users",
		},
		{
			name:     "bare query",
			response: "WITH x AS (SELECT 1) SELECT * FROM x",
			want:     "WITH x AS (SELECT 1) SELECT * FROM x",
		},
		{
			name:     "no sql at all",
			response: "не могу исправить этот запрос",
			wantErr:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseRegenerateResponse(tc.response)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
