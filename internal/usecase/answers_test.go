package usecase_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain/mocks"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/usecase"
)

func TestEvaluateAnswers_VoicePrefersNestedAudioURL(t *testing.T) {
	gw := &mocks.MockModelGateway{}
	tr := &mocks.MockTranscriber{}
	media := &mocks.MockMediaStore{}

	clip := filepath.Join(t.TempDir(), "clip.webm")
	require.NoError(t, os.WriteFile(clip, []byte("x"), 0o600))

	media.On("Download", mock.Anything, "https://cdn/audio.webm").Return(clip, nil).Once()
	tr.On("TranscribeAudio", mock.Anything, clip).Return(domain.Transcript{Text: "um so I like Go", Duration: 12}, nil).Once()
	gw.On("GenerateText", mock.Anything, promptWith(markRefine), mock.Anything).Return(" I like Go. ", nil).Once()
	gw.On("GenerateJSON", mock.Anything, promptWith("Answer (spoken, transcribed)"), mock.Anything).Return(map[string]any{"quality_score": 64.0}, nil).Once()

	e := usecase.NewAnswerEvaluator(gw, tr, media)
	res := e.Evaluate(context.Background(), []domain.Answer{{
		ID: "a1", QuestionID: "q1", Type: domain.AnswerVoice, Value: "https://cdn/flat.webm",
		VoiceData: &domain.VoiceData{AudioURL: "https://cdn/audio.webm"},
	}}, domain.JobContext{})

	require.Len(t, res.Voice, 1)
	v := res.Voice[0]
	assert.Equal(t, "Question q1", v.Question)
	assert.Equal(t, "um so I like Go", v.RawTranscript)
	assert.Equal(t, "I like Go.", v.RefinedTranscript)
	assert.Equal(t, 64.0, v.QualityScore)
	assert.Equal(t, 12.0, v.Duration)
	assert.NoFileExists(t, clip)
	assert.Empty(t, res.Text)
	assert.Nil(t, res.Profile)
	assert.Equal(t, 64.0, usecase.VoiceScore(res.Voice))
}

func TestEvaluateAnswers_FailedAnswerIsDropped(t *testing.T) {
	gw := &mocks.MockModelGateway{}
	media := &mocks.MockMediaStore{}
	media.On("Download", mock.Anything, "https://cdn/missing.webm").Return("", domain.ErrNotFound)

	gw.On("GenerateJSON", mock.Anything, promptWith("Answer (written)"), mock.Anything).Return(map[string]any{"quality_score": 90.0}, nil)
	gw.On("GenerateJSON", mock.Anything, promptWith(markAggregate), mock.Anything).Return(map[string]any{
		"smart_summary": "pragmatic", "strengths": []any{"clear"}, "red_flags": []any{},
	}, nil)

	res := usecase.NewAnswerEvaluator(gw, &mocks.MockTranscriber{}, media).Evaluate(context.Background(), []domain.Answer{
		{ID: "v1", Type: domain.AnswerVoice, Value: "https://cdn/missing.webm"},
		{ID: "v2", Type: domain.AnswerVoice},
		{ID: "t1", QuestionLabel: "Why us?", Type: domain.AnswerText, Value: "Because."},
		{ID: "t2", Type: domain.AnswerText, Value: "   "},
		{ID: "f1", Type: domain.AnswerFile, Value: "https://cdn/cv.pdf"},
	}, domain.JobContext{})

	assert.Empty(t, res.Voice)
	require.Len(t, res.Text, 1)
	assert.Equal(t, "Why us?", res.Text[0].Question)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "pragmatic", res.Profile.SmartSummary)
	assert.Nil(t, res.Profile.AlignmentScore)
	assert.Equal(t, 90.0, usecase.TextScore(res.Profile, res.Text), "mean quality without alignment score")
}

func TestEvaluateAnswers_AlignmentScoreWins(t *testing.T) {
	gw := &mocks.MockModelGateway{}
	gw.On("GenerateJSON", mock.Anything, promptWith("Answer (written)"), mock.Anything).Return(map[string]any{"quality_score": 40.0}, nil).Twice()
	gw.On("GenerateJSON", mock.Anything, promptWith(markAggregate), mock.Anything).Return(map[string]any{"alignment_score": "72"}, nil).Once()

	res := usecase.NewAnswerEvaluator(gw, &mocks.MockTranscriber{}, &mocks.MockMediaStore{}).Evaluate(context.Background(), []domain.Answer{
		{ID: "t1", Type: domain.AnswerText, Value: "a"},
		{ID: "t2", Type: domain.AnswerText, Value: "b"},
	}, domain.JobContext{})

	require.Len(t, res.Text, 2)
	assert.Equal(t, "t1", res.Text[0].AnswerID, "input order kept")
	assert.Equal(t, 72.0, usecase.TextScore(res.Profile, res.Text))
	gw.AssertExpectations(t)
}

func TestEvaluateAnswers_PanickingAnswerIsDropped(t *testing.T) {
	gw := &mocks.MockModelGateway{}
	media := &mocks.MockMediaStore{}
	media.On("Download", mock.Anything, "https://cdn/bad.webm").
		Run(func(mock.Arguments) { panic("corrupt header") }).Return("", nil)
	gw.On("GenerateJSON", mock.Anything, promptWith("Answer (written)"), mock.Anything).Return(map[string]any{"quality_score": 70.0}, nil)
	gw.On("GenerateJSON", mock.Anything, promptWith(markAggregate), mock.Anything).Return(map[string]any{"smart_summary": "ok"}, nil)

	var res usecase.AnswersResult
	require.NotPanics(t, func() {
		res = usecase.NewAnswerEvaluator(gw, &mocks.MockTranscriber{}, media).Evaluate(context.Background(), []domain.Answer{
			{ID: "v1", Type: domain.AnswerVoice, Value: "https://cdn/bad.webm"},
			{ID: "t1", Type: domain.AnswerText, Value: "Because."},
		}, domain.JobContext{})
	})
	assert.Empty(t, res.Voice)
	require.Len(t, res.Text, 1)
	assert.Equal(t, "t1", res.Text[0].AnswerID)
}
