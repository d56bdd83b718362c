package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/paperqa/helper"
)

// HugotSummarizer creates a summarizer running a local text generation model.
// The onnx file is looked up inside the prepared model directory.
func HugotSummarizer(modelName string, onnxFilePath string) (SummarizeFunc, error) {
	generate, err := newHugotGenerator(modelName, onnxFilePath, "summarizer-pipeline")
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, text string, maxLength int) (string, error) {
		summary, err := generate(ctx, "summarize: "+text)
		if err != nil {
			return "", err
		}
		return TruncateRunes(summary, maxLength), nil
	}, nil
}

// HugotAnswerer creates an answerer running a local text generation model.
// The model is prompted with the question followed by the context.
func HugotAnswerer(modelName string, onnxFilePath string) (AnswerFunc, error) {
	generate, err := newHugotGenerator(modelName, onnxFilePath, "answerer-pipeline")
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, question string, contextText string) (Answer, error) {
		answer, err := generate(ctx, fmt.Sprintf("question: %s context: %s", question, contextText))
		if err != nil {
			return Answer{}, err
		}
		return Answer{Text: answer}, nil
	}, nil
}

func newHugotGenerator(modelName string, onnxFilePath string, name string) (func(ctx context.Context, prompt string) (string, error), error) {
	modelPath, err := helper.PrepareModel(modelName, onnxFilePath)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TextGenerationConfig{
		ModelPath: modelPath,
		Name:      name,
	}
	generationPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create generation pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create generation pipeline: %w", err)
	}

	return func(ctx context.Context, prompt string) (string, error) {
		output, err := generationPipeline.RunPipeline(ctx, []string{prompt})
		if err != nil {
			return "", fmt.Errorf("failed to generate: %w", err)
		}
		if len(output.Responses) == 0 {
			return "", fmt.Errorf("no response generated")
		}
		return strings.TrimSpace(output.Responses[0]), nil
	}, nil
}

// TruncateRunes cuts text to at most max runes, at a word boundary when possible
func TruncateRunes(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := string(runes[:max])
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
