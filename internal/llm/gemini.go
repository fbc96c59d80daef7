// Package llm はLLMによるクイズ生成機能を提供する。
// Gemini APIにJSONスキーマ付きで1回だけ問い合わせ、問題とトークン使用量を返す。
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hitoshi/quizroom/internal/model"
)

// ErrEmptyResponse はLLMが候補を返さなかった場合のエラー。
var ErrEmptyResponse = errors.New("llm returned no candidates")

// ErrMalformedResponse はLLMの出力がスキーマに沿ったJSONでなかった場合のエラー。
var ErrMalformedResponse = errors.New("llm returned malformed quiz JSON")

// QuizRequest はクイズ生成の入力。検証済みの値を渡す。
type QuizRequest struct {
	Topic      string
	Difficulty model.Difficulty
	Count      int
	Language   string // LLMが出力する言語（BCP 47）
}

// Result はクイズ生成の結果とトークン使用量。
type Result struct {
	Questions        []model.Question
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator はクイズ生成のインターフェース。
type Generator interface {
	GenerateQuiz(ctx context.Context, req QuizRequest) (*Result, error)
}

// contentGenerator は*genai.GenerativeModelのうち生成に使うメソッドのみを抽出したもの。
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator はGemini APIを使用したGenerator実装。
type GeminiGenerator struct {
	client    *genai.Client
	model     contentGenerator
	modelName string
	logger    *slog.Logger
}

// NewGeminiGenerator はGemini APIクライアントを初期化してGeminiGeneratorを生成する。
// レスポンスはapplication/jsonに固定し、quizResponseSchemaで構造を指定する。
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	m := client.GenerativeModel(modelName)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = quizResponseSchema()
	m.SetTemperature(0.7)
	m.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))

	return &GeminiGenerator{
		client:    client,
		model:     m,
		modelName: modelName,
		logger:    logger,
	}, nil
}

// Close はGemini APIクライアントを閉じる。
func (g *GeminiGenerator) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// GenerateQuiz はLLMに1回問い合わせてクイズを生成する。
// 出力の構造的な検証（選択肢数、正解位置）は呼び出し元が行う。
func (g *GeminiGenerator) GenerateQuiz(ctx context.Context, req QuizRequest) (*Result, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		g.logger.Error("Gemini APIの呼び出しに失敗しました",
			slog.String("model", g.modelName),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	raw, err := firstText(resp)
	if err != nil {
		return nil, err
	}

	var payload quizPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		g.logger.Warn("Gemini APIのレスポンスのパースに失敗しました",
			slog.String("model", g.modelName),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(payload.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrMalformedResponse)
	}

	result := &Result{
		Questions: payload.Questions,
		Model:     g.modelName,
	}
	if u := resp.UsageMetadata; u != nil {
		result.PromptTokens = int(u.PromptTokenCount)
		result.CompletionTokens = int(u.CandidatesTokenCount)
		result.TotalTokens = int(u.TotalTokenCount)
	}
	return result, nil
}

// quizPayload はLLMが返すJSONの構造。
type quizPayload struct {
	Questions []model.Question `json:"questions"`
}

const systemInstruction = "You write multiple-choice quiz questions. " +
	"Every question has exactly four distinct choices and exactly one correct answer. " +
	"answerIndex is the zero-based position of the correct choice. " +
	"Keep explanations to one or two sentences. Output plain text without HTML or Markdown."

func buildPrompt(req QuizRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %d %s-difficulty quiz questions about the topic below.\n", req.Count, req.Difficulty)
	fmt.Fprintf(&b, "Write every prompt, choice and explanation in language %q.\n", req.Language)
	b.WriteString("Topic: ")
	b.WriteString(req.Topic)
	return b.String()
}

// quizResponseSchema は{questions:[{prompt, choices[], answerIndex, explanation}]}のスキーマを返す。
func quizResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"questions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"prompt": {Type: genai.TypeString},
						"choices": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeString},
						},
						"answerIndex": {Type: genai.TypeInteger},
						"explanation": {Type: genai.TypeString},
					},
					Required: []string{"prompt", "choices", "answerIndex", "explanation"},
				},
			},
		},
		Required: []string{"questions"},
	}
}

// firstText は最初の候補のテキストパートを連結して返す。
func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// compile-time interface check
var _ Generator = (*GeminiGenerator)(nil)
