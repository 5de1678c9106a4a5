// Package setup obtains hosted payment page sessions from the Express gateway.
package setup

import (
	"context"
	"errors"
	"io"
	"strings"

	"checkout/internal/payment/express"
	httpClient "checkout/internal/utility/http"

	"go.uber.org/zap"
)

// Poster is the transport used to reach the gateway.
type Poster interface {
	Post(ctx context.Context, url string, body io.Reader, opts ...httpClient.RequestOption) (string, error)
}

type Client struct {
	transport         Poster
	logger            *zap.Logger
	endpoint          string
	hostedPaymentsURL string
}

type Option func(*Client)

func WithEndpoint(url string) Option {
	return func(c *Client) {
		c.endpoint = url
	}
}

func WithHostedPaymentsURL(url string) Option {
	return func(c *Client) {
		c.hostedPaymentsURL = url
	}
}

func NewClient(transport Poster, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		transport:         transport,
		logger:            logger,
		endpoint:          express.GetBaseEndpoint(),
		hostedPaymentsURL: express.GetHostedPaymentsEndpoint(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetupSession requests a new hosted payment session. On ErrMissingIdentifier
// the partially filled response is returned along with the error.
func (c *Client) SetupSession(ctx context.Context, payload TransactionSetupRequest, signals Signals) (resp *TransactionSetupResponse, err error) {
	signals.loading(true)
	defer func() {
		if err != nil {
			signals.failed()
		}
		signals.loading(false)
	}()

	body, err := buildRequestBody(payload)
	if err != nil {
		c.logger.Warn("Invalid transaction setup request", zap.Error(err))
		return nil, newSetupError(ErrInvalidRequest, err)
	}

	c.logger.Info("Requesting transaction setup",
		zap.String("reference_number", payload.ReferenceNumber),
		zap.String("amount", payload.Amount),
	)

	raw, err := c.transport.Post(ctx, c.endpoint, strings.NewReader(body),
		httpClient.WithHeader("Content-Type", "text/xml"),
		httpClient.WithHeader("Accept", "text/xml"),
	)
	if err != nil {
		setupErr := newSetupError(ErrTransport, err)
		var statusErr *httpClient.StatusError
		if errors.As(err, &statusErr) {
			setupErr.StatusCode = statusErr.Code
		}
		c.logger.Error("Transaction setup request failed",
			zap.Error(err),
			zap.Int("status_code", setupErr.StatusCode),
		)
		return nil, setupErr
	}

	resp, err = c.parseResponse(raw)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if resp != nil {
			fields = append(fields,
				zap.String("express_response_code", resp.ExpressResponseCode),
				zap.String("express_response_message", resp.ExpressResponseMessage),
			)
		}
		c.logger.Warn("Unusable transaction setup response", fields...)
		return resp, err
	}

	c.logger.Info("Transaction setup created",
		zap.String("transaction_setup_id", *resp.TransactionSetupID),
	)

	return resp, nil
}
