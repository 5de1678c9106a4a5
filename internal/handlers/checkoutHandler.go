package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"checkout/internal/audit"
	"checkout/internal/checkout"
	"checkout/internal/embed"
	"checkout/internal/models"
	"checkout/internal/payment/express"
	"checkout/internal/payment/express/setup"
	utility "checkout/internal/utility"
	httpClient "checkout/internal/utility/http"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20

var validate = validator.New()

// Mailer sends receipt mails.
type Mailer interface {
	Configured() bool
	SendMail(msg string, receiver string, subject string) error
}

type Settings struct {
	TokenSecret []byte
	TokenTTL    time.Duration
	// CompletedTTL is how long a paid session stays readable before it is
	// evicted. Zero keeps it until the registry's own TTL.
	CompletedTTL     time.Duration
	Credentials      express.Credentials
	MaxExpiryRetries int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
}

type CheckoutAPI struct {
	ctx      context.Context
	registry *checkout.Registry
	relay    *embed.Relay
	setup    checkout.SessionSetup
	recorder *audit.Recorder
	mailer   Mailer
	settings Settings
	logger   *zap.Logger
}

// NewCheckoutAPI wires the checkout endpoints. Sessions created through the
// API consume their results until ctx is done. recorder and mailer may be nil.
func NewCheckoutAPI(ctx context.Context, sessionSetup checkout.SessionSetup, registry *checkout.Registry, relay *embed.Relay,
	recorder *audit.Recorder, mailer Mailer, settings Settings, logger *zap.Logger) *CheckoutAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(logger)
	}
	return &CheckoutAPI{
		ctx:      ctx,
		registry: registry,
		relay:    relay,
		setup:    sessionSetup,
		recorder: recorder,
		mailer:   mailer,
		settings: settings,
		logger:   logger,
	}
}

func (api *CheckoutAPI) Routes(r chi.Router) {
	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", api.CreateCheckout)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(Authentication(api.settings.TokenSecret))

			r.Get("/", api.GetCheckout)
			r.Delete("/", api.DeleteCheckout)
			r.Put("/billing-address", api.SetBillingAddress)
			r.Put("/shipping-address", api.SetShippingAddress)
			r.Post("/payment-method", api.SelectPaymentMethod)
			r.Post("/result", api.PostResult)
			r.Post("/reset", api.ResetCheckout)
		})
	})
}

type createCheckoutRequest struct {
	TotalAmount            decimal.Decimal `json:"totalAmount"`
	TransactionReferenceID string          `json:"transactionReferenceId" validate:"required"`
	ReturnURL              string          `json:"returnUrl"`
	SuccessRedirectURL     string          `json:"successRedirectUrl"`
	RequireShipping        bool            `json:"requireShipping"`
	Styling                setup.Styling   `json:"styling"`
	BillingAddress         json.RawMessage `json:"billingAddress,omitempty"`
	ShippingAddress        json.RawMessage `json:"shippingAddress,omitempty"`
}

type createCheckoutResponse struct {
	SessionID string            `json:"sessionId"`
	Token     string            `json:"token"`
	Session   checkout.Snapshot `json:"session"`
}

type checkoutView struct {
	Session checkout.Snapshot `json:"session"`
	Frame   *embed.Frame      `json:"frame,omitempty"`
}

func (api *CheckoutAPI) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req createCheckoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		httpClient.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpClient.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.TotalAmount.IsPositive() {
		httpClient.RespondError(w, http.StatusBadRequest, "totalAmount must be greater than zero")
		return
	}

	id := uuid.NewString()
	token, err := utility.GenerateSessionToken(api.settings.TokenSecret, id, api.settings.TokenTTL)
	if err != nil {
		api.logger.Error("Failed to issue session token", zap.Error(err))
		httpClient.RespondError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	opts := checkout.Options{
		SessionID:          id,
		Amount:             req.TotalAmount,
		ReferenceID:        req.TransactionReferenceID,
		Credentials:        api.settings.Credentials,
		ReturnURL:          req.ReturnURL,
		Styling:            req.Styling,
		SuccessRedirectURL: req.SuccessRedirectURL,
		RequireShipping:    req.RequireShipping,
		MaxExpiryRetries:   api.settings.MaxExpiryRetries,
		RetryBaseDelay:     api.settings.RetryBaseDelay,
		RetryMaxDelay:      api.settings.RetryMaxDelay,
	}
	var o *checkout.Orchestrator
	o = checkout.New(api.setup, api.relay, opts, api.hooks(id, req, func() *checkout.Orchestrator { return o }), api.logger)
	api.registry.Start(api.ctx, o)

	if len(req.BillingAddress) > 0 {
		if addr, ok := models.ParseBillingAddress(req.BillingAddress); ok {
			_ = o.SetBillingAddress(r.Context(), &addr)
		}
	}
	if len(req.ShippingAddress) > 0 {
		if addr, ok := models.ParseShippingAddress(req.ShippingAddress); ok {
			_ = o.SetShippingAddress(r.Context(), &addr)
		}
	}

	api.logger.Info("Checkout session created",
		zap.String("session_id", id),
		zap.String("reference_id", req.TransactionReferenceID),
		zap.String("amount", req.TotalAmount.StringFixed(2)),
	)

	httpClient.RespondStatus(w, http.StatusCreated, createCheckoutResponse{
		SessionID: id,
		Token:     token,
		Session:   o.Snapshot(),
	})
}

// hooks connect a session to the audit trail and the receipt mail. The
// recorder queues its writes, so the hooks never wait on a sink.
func (api *CheckoutAPI) hooks(id string, req createCheckoutRequest, self func() *checkout.Orchestrator) checkout.Hooks {
	return checkout.Hooks{
		Transition: func(from, to checkout.State) {
			api.recorder.RecordTransition(context.Background(), id, from, to)
		},
		Setup: func(attempt checkout.SetupAttempt) {
			api.recorder.RecordSetup(context.Background(), attempt)
		},
		Completed: func(snap checkout.Snapshot) {
			if api.settings.CompletedTTL > 0 {
				api.registry.RemoveAfter(self(), api.settings.CompletedTTL)
			}
			go api.sendReceipt(snap, req.TotalAmount, req.TransactionReferenceID)
		},
	}
}

func (api *CheckoutAPI) GetCheckout(w http.ResponseWriter, r *http.Request) {
	o, ok := api.session(w, r)
	if !ok {
		return
	}
	httpClient.RespondSuccess(w, api.view(o))
}

func (api *CheckoutAPI) SetBillingAddress(w http.ResponseWriter, r *http.Request) {
	o, ok := api.session(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httpClient.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// a partial record counts as no address at all
	var addr *models.BillingAddress
	if parsed, ok := models.ParseBillingAddress(raw); ok {
		addr = &parsed
	}
	if err := o.SetBillingAddress(r.Context(), addr); err != nil {
		api.respondCheckoutError(w, err)
		return
	}
	httpClient.RespondSuccess(w, api.view(o))
}

func (api *CheckoutAPI) SetShippingAddress(w http.ResponseWriter, r *http.Request) {
	o, ok := api.session(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httpClient.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var addr *models.ShippingAddress
	if parsed, ok := models.ParseShippingAddress(raw); ok {
		addr = &parsed
	}
	if err := o.SetShippingAddress(r.Context(), addr); err != nil {
		api.respondCheckoutError(w, err)
		return
	}
	httpClient.RespondSuccess(w, api.view(o))
}

func (api *CheckoutAPI) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	o, ok := api.session(w, r)
	if !ok {
		return
	}
	if err := o.SelectPaymentMethod(r.Context()); err != nil {
		api.respondCheckoutError(w, err)
		return
	}
	httpClient.RespondSuccess(w, api.view(o))
}

func (api *CheckoutAPI) PostResult(w http.ResponseWriter, r *http.Request) {
	o, ok := api.session(w, r)
	if !ok {
		return
	}

	var result checkout.SessionResult
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&result); err != nil {
		httpClient.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(result); err != nil {
		httpClient.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := api.relay.Notify(o.ID(), result); err != nil {
		switch {
		case errors.Is(err, embed.ErrUnknownTarget):
			httpClient.RespondError(w, http.StatusConflict, "No payment page is active for this session")
			return
		case errors.Is(err, embed.ErrStaleResult):
			httpClient.RespondError(w, http.StatusConflict, "Result belongs to a payment page that was replaced")
			return
		}
		httpClient.RespondError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	httpClient.RespondStatus(w, http.StatusAccepted, nil)
}

func (api *CheckoutAPI) ResetCheckout(w http.ResponseWriter, r *http.Request) {
	o, ok := api.session(w, r)
	if !ok {
		return
	}
	o.Reset()
	api.relay.Remove(o.ID())
	httpClient.RespondSuccess(w, api.view(o))
}

func (api *CheckoutAPI) DeleteCheckout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !api.registry.Remove(id) {
		httpClient.RespondError(w, http.StatusNotFound, "Checkout session not found")
		return
	}
	httpClient.RespondSuccess(w, nil)
}

func (api *CheckoutAPI) session(w http.ResponseWriter, r *http.Request) (*checkout.Orchestrator, bool) {
	id := chi.URLParam(r, "id")
	if claims, ok := claimsFrom(r.Context()); !ok || claims.SessionID != id {
		httpClient.RespondError(w, http.StatusForbidden, "Token does not belong to this session")
		return nil, false
	}
	o, ok := api.registry.Get(id)
	if !ok {
		httpClient.RespondError(w, http.StatusNotFound, "Checkout session not found")
		return nil, false
	}
	return o, true
}

func (api *CheckoutAPI) view(o *checkout.Orchestrator) checkoutView {
	v := checkoutView{Session: o.Snapshot()}
	if v.Session.State == checkout.StateAwaitingResult {
		if frame, ok := api.relay.Frame(o.ID()); ok {
			v.Frame = &frame
		}
	}
	return v
}

func (api *CheckoutAPI) respondCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrPaymentMethodDisabled), errors.Is(err, checkout.ErrCompleted):
		httpClient.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrClosed):
		httpClient.RespondError(w, http.StatusGone, err.Error())
	default:
		api.logger.Error("Checkout operation failed", zap.Error(err))
		httpClient.RespondError(w, http.StatusInternalServerError, "Something went wrong")
	}
}
