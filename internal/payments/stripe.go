package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/client"
)

// StripeProcessor is the production Processor.
type StripeProcessor struct {
	client *client.API
}

func NewStripeProcessor(secretKey string) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeProcessor{client: api}
}

func (p *StripeProcessor) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	intent, err := p.client.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}

	return intentFromStripe(intent), nil
}

func (p *StripeProcessor) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := p.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, err
	}

	return intentFromStripe(intent), nil
}

func (p *StripeProcessor) CreateRefund(ctx context.Context, intentID string, amount int64) (*Refund, error) {

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx

	refund, err := p.client.Refunds.New(params)
	if err != nil {
		return nil, err
	}

	return &Refund{ID: refund.ID}, nil
}

func intentFromStripe(intent *stripe.PaymentIntent) *Intent {
	out := &Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}
	if intent.LastPaymentError != nil {
		out.FailureMsg = intent.LastPaymentError.Msg
	}
	return out
}
