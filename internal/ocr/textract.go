package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// AnalyzeExpenseAPI is the subset of the Textract client used here.
type AnalyzeExpenseAPI interface {
	AnalyzeExpense(ctx context.Context, params *textract.AnalyzeExpenseInput, optFns ...func(*textract.Options)) (*textract.AnalyzeExpenseOutput, error)
}

// Textract is an Extractor backed by AWS Textract AnalyzeExpense.
type Textract struct {
	client AnalyzeExpenseAPI
}

func NewTextract(client AnalyzeExpenseAPI) *Textract {
	return &Textract{client: client}
}

// NewTextractFromEnv builds a client from the default AWS credential chain
// (AWS_REGION, AWS_PROFILE, instance roles...). HTTP calls are traced.
func NewTextractFromEnv(ctx context.Context) (*Textract, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewTextract(textract.NewFromConfig(cfg)), nil
}

// rawResponse is the persisted form of an AnalyzeExpense result.
type rawResponse struct {
	DocumentMetadata *types.DocumentMetadata `json:"DocumentMetadata,omitempty"`
	ExpenseDocuments []types.ExpenseDocument `json:"ExpenseDocuments"`
}

func (t *Textract) Analyze(ctx context.Context, document []byte) (*Analysis, error) {
	out, err := t.client.AnalyzeExpense(ctx, &textract.AnalyzeExpenseInput{
		Document: &types.Document{Bytes: document},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze expense: %w", err)
	}
	if len(out.ExpenseDocuments) == 0 {
		return nil, ErrNoExpenseDocument
	}

	raw, err := json.Marshal(rawResponse{DocumentMetadata: out.DocumentMetadata, ExpenseDocuments: out.ExpenseDocuments})
	if err != nil {
		return nil, fmt.Errorf("encode analyze expense response: %w", err)
	}

	a := &Analysis{Raw: raw}
	if out.DocumentMetadata != nil {
		a.Pages = int(aws.ToInt32(out.DocumentMetadata.Pages))
	}
	for _, doc := range out.ExpenseDocuments {
		for _, f := range doc.SummaryFields {
			a.Summary = append(a.Summary, toSummaryField(f))
		}
		for _, b := range doc.Blocks {
			if b.BlockType == types.BlockTypeLine && b.Text != nil {
				a.Lines = append(a.Lines, *b.Text)
			}
		}
	}
	return a, nil
}

func toSummaryField(f types.ExpenseField) SummaryField {
	sf := SummaryField{}
	if f.Type != nil {
		sf.Type = aws.ToString(f.Type.Text)
	}
	if f.LabelDetection != nil {
		sf.Label = aws.ToString(f.LabelDetection.Text)
	}
	if f.ValueDetection != nil {
		sf.Text = aws.ToString(f.ValueDetection.Text)
		sf.Confidence = float64(aws.ToFloat32(f.ValueDetection.Confidence))
	}
	if f.Currency != nil {
		sf.Currency = aws.ToString(f.Currency.Code)
	}
	return sf
}
