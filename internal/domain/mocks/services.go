package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// MockModelGateway is a mock of domain.ModelGateway.
type MockModelGateway struct{ mock.Mock }

func (m *MockModelGateway) GenerateText(ctx domain.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	args := m.Called(ctx, prompt, opts)
	return args.String(0), args.Error(1)
}

func (m *MockModelGateway) GenerateJSON(ctx domain.Context, prompt string, opts domain.GenerateOptions) (map[string]any, error) {
	args := m.Called(ctx, prompt, opts)
	obj, _ := args.Get(0).(map[string]any)
	return obj, args.Error(1)
}

func (m *MockModelGateway) AnalyzeCV(ctx domain.Context, cvText string) (map[string]any, error) {
	args := m.Called(ctx, cvText)
	obj, _ := args.Get(0).(map[string]any)
	return obj, args.Error(1)
}

// MockTranscriber is a mock of domain.Transcriber.
type MockTranscriber struct{ mock.Mock }

func (m *MockTranscriber) TranscribeAudio(ctx domain.Context, path string) (domain.Transcript, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(domain.Transcript), args.Error(1)
}

func (m *MockTranscriber) ExtractAudioFromVideo(ctx domain.Context, videoPath string) (string, error) {
	args := m.Called(ctx, videoPath)
	return args.String(0), args.Error(1)
}

// MockTextExtractor is a mock of domain.TextExtractor.
type MockTextExtractor struct{ mock.Mock }

func (m *MockTextExtractor) Extract(ctx domain.Context, fileType string, data []byte) (string, error) {
	args := m.Called(ctx, fileType, data)
	return args.String(0), args.Error(1)
}

// MockMediaStore is a mock of domain.MediaStore.
type MockMediaStore struct{ mock.Mock }

func (m *MockMediaStore) Download(ctx domain.Context, ref string) (string, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Error(1)
}

func (m *MockMediaStore) Fetch(ctx domain.Context, ref string) ([]byte, error) {
	args := m.Called(ctx, ref)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}
