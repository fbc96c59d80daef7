// Package translate はクイズ内の文字列を翻訳するユーティリティを提供する。
//
// デコード済みのJSON値（map[string]any, []any, string）を再帰的にたどり、
// 許可リストに含まれるキーの文字列だけを1文字列1回の翻訳APIで置き換える。
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/quizroom/internal/metrics"
	"github.com/hitoshi/quizroom/internal/model"
)

// DefaultKeys はクイズの翻訳対象キー。answerIndexなど数値や識別子は含めない。
var DefaultKeys = []string{"prompt", "choices", "explanation"}

// TextTranslator は1つの文字列を翻訳するバックエンドのインターフェース。
type TextTranslator interface {
	TranslateText(ctx context.Context, text, source, target string) (string, error)
}

// Translator は許可リストに基づいて値を再帰的に翻訳する。
type Translator struct {
	backend TextTranslator
	source  string
	keys    map[string]struct{}
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewTranslator はTranslatorを生成する。keysが空の場合はDefaultKeysを使用する。
func NewTranslator(backend TextTranslator, source string, keys []string, mc metrics.MetricsCollector, logger *slog.Logger) *Translator {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	allow := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allow[k] = struct{}{}
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Translator{
		backend: backend,
		source:  source,
		keys:    allow,
		metrics: mc,
		logger:  logger,
	}
}

// Source は翻訳元の言語コードを返す。
func (t *Translator) Source() string {
	return t.source
}

// NeedsTranslation はtargetへの翻訳が必要かどうかを返す。
func (t *Translator) NeedsTranslation(target string) bool {
	return target != "" && !strings.EqualFold(target, t.source)
}

// Translate はvを再帰的にたどり、許可リストのキーにある文字列を翻訳した新しい値を返す。
// vは変更しない。翻訳元と翻訳先が同じ場合はAPIを呼ばずにvをそのまま返す。
func (t *Translator) Translate(ctx context.Context, v any, target string) (any, error) {
	if !t.NeedsTranslation(target) {
		return v, nil
	}
	return t.walk(ctx, v, target, false)
}

// TranslateQuestions は問題一覧を翻訳した新しいスライスを返す。
func (t *Translator) TranslateQuestions(ctx context.Context, questions []model.Question, target string) ([]model.Question, error) {
	if !t.NeedsTranslation(target) {
		return questions, nil
	}

	raw, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode questions: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}

	translated, err := t.Translate(ctx, generic, target)
	if err != nil {
		return nil, err
	}

	raw, err = json.Marshal(translated)
	if err != nil {
		return nil, fmt.Errorf("failed to encode translated questions: %w", err)
	}
	var out []model.Question
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode translated questions: %w", err)
	}
	return out, nil
}

// walk は値を再帰的にたどる。allowedは直前のキーが許可リストに含まれていたかを示す。
func (t *Translator) walk(ctx context.Context, v any, target string, allowed bool) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			_, ok := t.keys[k]
			translated, err := t.walk(ctx, child, target, ok)
			if err != nil {
				return nil, err
			}
			out[k] = translated
		}
		return out, nil

	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			translated, err := t.walk(ctx, child, target, allowed)
			if err != nil {
				return nil, err
			}
			out[i] = translated
		}
		return out, nil

	case string:
		if !allowed || strings.TrimSpace(val) == "" {
			return val, nil
		}
		return t.translateString(ctx, val, target)

	default:
		return v, nil
	}
}

func (t *Translator) translateString(ctx context.Context, text, target string) (string, error) {
	translated, err := t.backend.TranslateText(ctx, text, t.source, target)
	if err != nil {
		t.metrics.RecordTranslation(false)
		t.logger.Error("翻訳APIの呼び出しに失敗しました",
			slog.String("source", t.source),
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to translate text: %w", err)
	}
	t.metrics.RecordTranslation(true)
	return translated, nil
}
