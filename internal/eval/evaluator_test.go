package eval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedJudge struct {
	responses []string
	prompts   []string
	calls     int
}

func (s *scriptedJudge) Complete(_ context.Context, systemPrompt, _ string) (string, error) {
	s.prompts = append(s.prompts, systemPrompt)
	if s.calls >= len(s.responses) {
		return "", errors.New("unexpected judge call")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func newTestEvaluator(t *testing.T, judge LLMClient) *Evaluator {
	t.Helper()
	e, err := New(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		LLM:    judge,
	})
	require.NoError(t, err)
	return e
}

func TestEvaluate_AveragesAllRubrics(t *testing.T) {
	t.Parallel()

	judge := &scriptedJudge{responses: []string{
		`{"score": 5, "reasoning": "точный ответ"}`,
		`{"score": 4, "reasoning": "чуть длинновато"}`,
		`{"score": 4, "reasoning": "запрос корректен"}`,
	}}
	e := newTestEvaluator(t, judge)

	ev, err := e.Evaluate(context.Background(), "какая выручка?", "Выручка 3200.50.", "SELECT sum(order_amount) FROM orders WHERE status = 'completed'")
	require.NoError(t, err)

	require.Len(t, ev.Rubrics, 3)
	assert.Equal(t, 4, ev.Overall) // round(13/3)
	assert.Equal(t, "Оценка качества ответа:\n4 из 5", ev.Line())
}

func TestEvaluate_SkipsCodeRubricWithoutQuery(t *testing.T) {
	t.Parallel()

	judge := &scriptedJudge{responses: []string{
		`{"score": 5, "reasoning": "ок"}`,
		`{"score": 5, "reasoning": "ок"}`,
	}}
	e := newTestEvaluator(t, judge)

	ev, err := e.Evaluate(context.Background(), "привет", "Привет! Задайте вопрос о данных.", "")
	require.NoError(t, err)

	assert.Equal(t, 2, judge.calls)
	assert.Equal(t, 5, ev.Overall)
	for _, r := range ev.Rubrics {
		assert.NotEqual(t, "code", r.Name)
	}
}

func TestEvaluate_SkipsFailedRubric(t *testing.T) {
	t.Parallel()

	judge := &scriptedJudge{responses: []string{
		"нет JSON в этом ответе",
		`{"score": 3, "reasoning": "многословно"}`,
		`{"score": 99, "reasoning": "вне диапазона"}`,
	}}
	e := newTestEvaluator(t, judge)

	ev, err := e.Evaluate(context.Background(), "вопрос", "ответ", "SELECT 1")
	require.NoError(t, err)

	require.Len(t, ev.Rubrics, 1)
	assert.Equal(t, 3, ev.Overall)
}

func TestEvaluate_ErrorsWhenNoRubricScores(t *testing.T) {
	t.Parallel()

	judge := &scriptedJudge{responses: []string{"x", "y", "z"}}
	e := newTestEvaluator(t, judge)

	_, err := e.Evaluate(context.Background(), "вопрос", "ответ", "SELECT 1")
	require.Error(t, err)
}

func TestNew_LoadsRubricPrompts(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t, &scriptedJudge{})
	require.Len(t, e.rubrics, 3)
	for _, r := range e.rubrics {
		assert.True(t, strings.Contains(r.prompt, "JSON"), "rubric %s must demand JSON output", r.name)
	}
}
