package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTextract struct {
	out   *textract.AnalyzeExpenseOutput
	err   error
	input *textract.AnalyzeExpenseInput
}

func (f *fakeTextract) AnalyzeExpense(_ context.Context, in *textract.AnalyzeExpenseInput, _ ...func(*textract.Options)) (*textract.AnalyzeExpenseOutput, error) {
	f.input = in
	return f.out, f.err
}

func expenseField(typ, value string, confidence float32) types.ExpenseField {
	return types.ExpenseField{
		Type:           &types.ExpenseType{Text: aws.String(typ)},
		ValueDetection: &types.ExpenseDetection{Text: aws.String(value), Confidence: aws.Float32(confidence)},
	}
}

func TestTextract_Analyze(t *testing.T) {
	total := expenseField(TypeTotal, "1.000", 95)
	total.Currency = &types.ExpenseCurrency{Code: aws.String("USD")}

	fake := &fakeTextract{out: &textract.AnalyzeExpenseOutput{
		DocumentMetadata: &types.DocumentMetadata{Pages: aws.Int32(2)},
		ExpenseDocuments: []types.ExpenseDocument{{
			SummaryFields: []types.ExpenseField{
				expenseField(TypeVendorName, "ACME SA", 99),
				total,
			},
			Blocks: []types.Block{
				{BlockType: types.BlockTypePage},
				{BlockType: types.BlockTypeLine, Text: aws.String("FACTURA A")},
				{BlockType: types.BlockTypeWord, Text: aws.String("FACTURA")},
			},
		}},
	}}

	a, err := NewTextract(fake).Analyze(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, []byte("%PDF-1.4"), fake.input.Document.Bytes)
	assert.Equal(t, 2, a.Pages)
	assert.Equal(t, []string{"FACTURA A"}, a.Lines)
	require.Len(t, a.Summary, 2)
	assert.Equal(t, SummaryField{Type: TypeTotal, Text: "1.000", Confidence: 95, Currency: "USD"}, a.Summary[1])

	var raw map[string]any
	require.NoError(t, json.Unmarshal(a.Raw, &raw))
	assert.Contains(t, raw, "ExpenseDocuments")
}

func TestTextract_NoExpenseDocument(t *testing.T) {
	fake := &fakeTextract{out: &textract.AnalyzeExpenseOutput{}}

	_, err := NewTextract(fake).Analyze(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNoExpenseDocument)
}

func TestTextract_ClientError(t *testing.T) {
	boom := errors.New("throttled")
	fake := &fakeTextract{err: boom}

	_, err := NewTextract(fake).Analyze(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "analyze expense")
}
