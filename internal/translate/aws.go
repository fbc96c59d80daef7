package translate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/translate"
)

// translateAPI は*translate.ClientのうちTranslateTextのみを抽出したもの。
type translateAPI interface {
	TranslateText(ctx context.Context, params *translate.TranslateTextInput, optFns ...func(*translate.Options)) (*translate.TranslateTextOutput, error)
}

// AWSTranslator はAmazon Translateを使用したTextTranslator実装。
type AWSTranslator struct {
	api translateAPI
}

// NewAWSTranslator は既定の認証情報チェーンでAmazon Translateクライアントを生成する。
func NewAWSTranslator(ctx context.Context, region string) (*AWSTranslator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSTranslator{api: translate.NewFromConfig(cfg)}, nil
}

// TranslateText は1つの文字列を翻訳する。
func (a *AWSTranslator) TranslateText(ctx context.Context, text, source, target string) (string, error) {
	out, err := a.api.TranslateText(ctx, &translate.TranslateTextInput{
		Text:               aws.String(text),
		SourceLanguageCode: aws.String(source),
		TargetLanguageCode: aws.String(target),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.TranslatedText), nil
}

// compile-time interface check
var _ TextTranslator = (*AWSTranslator)(nil)
