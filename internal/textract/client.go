package textract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// ErrEmptyDocument is returned when the document bytes are empty
var ErrEmptyDocument = errors.New("document bytes cannot be empty")

// ClientConfig holds configuration for the Textract client
type ClientConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Client wraps AWS Textract for synchronous OCR over scanned documents
type Client struct {
	api DetectAPI
}

// DetectAPI is the subset of the Textract API the client uses
type DetectAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// NewClient creates a new Textract client with the given configuration
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{api: textract.NewFromConfig(awsCfg)}, nil
}

// ExtractText runs synchronous text detection over the document bytes and
// returns the detected lines joined by newlines, top to bottom.
func (c *Client) ExtractText(ctx context.Context, document []byte) (string, error) {
	if len(document) == 0 {
		return "", ErrEmptyDocument
	}

	output, err := c.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{
			Bytes: document,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to detect document text: %w", err)
	}

	lines := make([]string, 0, len(output.Blocks))
	for _, block := range output.Blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		lines = append(lines, *block.Text)
	}

	return strings.Join(lines, "\n"), nil
}
