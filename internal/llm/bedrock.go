package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/raphaelgruber/speechkit-go/internal/metrics"
)

type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock completes prompts with the Bedrock Converse API.
type Bedrock struct {
	client    converser
	modelID   string
	maxTokens int
	metrics   *metrics.Collector
}

// NewBedrock loads AWS credentials from the default chain. An empty region
// defers to AWS_REGION and the shared config.
func NewBedrock(ctx context.Context, region string, opts Options) (*Bedrock, error) {
	if opts.Model == "" {
		return nil, errors.New("bedrock model id required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Bedrock{
		client:    bedrockruntime.NewFromConfig(awsCfg),
		modelID:   opts.Model,
		maxTokens: opts.MaxTokens,
		metrics:   opts.Metrics,
	}, nil
}

func (b *Bedrock) MaxTokens() int { return b.maxTokens }

func (b *Bedrock) Process(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.modelID),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
		}},
	})
	if err != nil {
		recordUsage(b.metrics, start, err, 0, 0)
		return "", fmt.Errorf("bedrock converse: %w", wrapFatalError(err))
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		err := errors.New("bedrock converse: response has no message")
		recordUsage(b.metrics, start, err, 0, 0)
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}

	var in, outTokens int64
	if out.Usage != nil {
		in = int64(aws.ToInt32(out.Usage.InputTokens))
		outTokens = int64(aws.ToInt32(out.Usage.OutputTokens))
	}
	recordUsage(b.metrics, start, nil, in, outTokens)
	return sb.String(), nil
}
