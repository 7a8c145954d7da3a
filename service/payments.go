package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"acro-shop/events"
	"acro-shop/mailer"
	"acro-shop/model"
	"acro-shop/payu"
	"acro-shop/store"
)

// StatusNoOrder is reported for orders that have no PayU payment yet.
const StatusNoOrder = "no_order"

func (s *Service) paymentRequest(o model.Order, customerIP string) payu.OrderRequest {
	if customerIP == "" {
		customerIP = "127.0.0.1"
	}
	first, last, _ := strings.Cut(strings.TrimSpace(o.Address.Name), " ")

	req := payu.OrderRequest{
		NotifyURL:    strings.TrimRight(s.opts.PublicURL, "/") + "/api/payu/notify",
		ContinueURL:  strings.TrimRight(s.opts.FrontendURL, "/") + "/order/" + o.ID + "/confirmation",
		CustomerIP:   customerIP,
		Description:  "Zamówienie " + o.OrderNumber,
		CurrencyCode: "PLN",
		TotalAmount:  payu.Amount(o.Total),
		ExtOrderID:   o.ID,
		Buyer: &payu.Buyer{
			Email:     o.Email,
			Phone:     o.Address.Phone,
			FirstName: first,
			LastName:  last,
			Language:  "pl",
		},
	}
	if s.opts.Shipping.Currency != "" {
		req.CurrencyCode = s.opts.Shipping.Currency
	}
	for _, it := range o.Items {
		name := it.Name
		if it.Size != "" {
			name += " (" + it.Size + ")"
		}
		req.Products = append(req.Products, payu.Product{
			Name:      name,
			UnitPrice: payu.Amount(it.Price),
			Quantity:  strconv.Itoa(it.Quantity),
		})
	}
	if o.ShippingCost.IsPositive() {
		req.Products = append(req.Products, payu.Product{
			Name:      "Wysyłka",
			UnitPrice: payu.Amount(o.ShippingCost),
			Quantity:  "1",
		})
	}
	return req
}

// CreatePayment registers the order with PayU and returns the payment page.
// A PayU order is created at most once per local order.
func (s *Service) CreatePayment(ctx context.Context, c Caller, orderID, customerIP string) (PaymentDTO, error) {
	if s.payments == nil {
		return PaymentDTO{}, ErrNotConfigured
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return PaymentDTO{}, err
	}
	if !c.can(&o) {
		return PaymentDTO{}, ErrForbidden
	}
	if o.PaymentStatus != model.PaymentPending || o.Status == model.OrderCancelled {
		return PaymentDTO{}, ErrAlreadyPaid
	}
	if o.HasPayUOrder() {
		return PaymentDTO{}, ErrPaymentStarted
	}

	resp, err := s.payments.CreateOrder(ctx, s.paymentRequest(o, customerIP))
	if err != nil {
		return PaymentDTO{}, &GatewayError{Gateway: "payu", Err: err}
	}
	if err := s.store.SetPayUOrderID(ctx, o.ID, resp.OrderID); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return PaymentDTO{}, ErrPaymentStarted
		}
		return PaymentDTO{}, err
	}
	s.log.Info("payment created", zap.String("order_id", o.ID), zap.String("payu_order_id", resp.OrderID))
	return PaymentDTO{RedirectURI: resp.RedirectURI, PayUOrderID: resp.OrderID}, nil
}

// CheckPaymentStatus asks PayU for the current state of the order's payment
// and applies it. Orders without a PayU order are answered locally.
func (s *Service) CheckPaymentStatus(ctx context.Context, c Caller, orderID string) (PaymentStatusDTO, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return PaymentStatusDTO{}, err
	}
	if !c.can(&o) {
		return PaymentStatusDTO{}, ErrForbidden
	}
	return s.RefreshPayment(ctx, o)
}

// RefreshPayment is CheckPaymentStatus without the ownership check.
func (s *Service) RefreshPayment(ctx context.Context, o model.Order) (PaymentStatusDTO, error) {
	if !o.HasPayUOrder() {
		return PaymentStatusDTO{Status: StatusNoOrder, PaymentStatus: o.PaymentStatus, OrderStatus: o.Status}, nil
	}
	if s.payments == nil {
		return PaymentStatusDTO{}, ErrNotConfigured
	}
	remote, err := s.payments.OrderStatus(ctx, o.PayUOrderID.String)
	if err != nil {
		return PaymentStatusDTO{}, &GatewayError{Gateway: "payu", Err: err}
	}
	o, err = s.applyPaymentStatus(ctx, o, remote)
	if err != nil {
		return PaymentStatusDTO{}, err
	}
	return PaymentStatusDTO{Status: remote, PaymentStatus: o.PaymentStatus, OrderStatus: o.Status}, nil
}

// RefreshPaymentByID loads the order and refreshes its payment.
func (s *Service) RefreshPaymentByID(ctx context.Context, orderID string) (PaymentStatusDTO, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return PaymentStatusDTO{}, err
	}
	return s.RefreshPayment(ctx, o)
}

// HandleNotification processes a PayU webhook call.
func (s *Service) HandleNotification(ctx context.Context, signature string, body []byte) error {
	if s.payments == nil {
		return ErrNotConfigured
	}
	if err := s.payments.VerifyNotification(signature, body); err != nil {
		s.log.Warn("payu notification rejected", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	var n payu.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return invalid("malformed notification")
	}
	o, err := s.store.GetOrder(ctx, n.Order.ExtOrderID)
	if errors.Is(err, ErrNotFound) && n.Order.OrderID != "" {
		o, err = s.store.GetOrderByPayUID(ctx, n.Order.OrderID)
	}
	if err != nil {
		return err
	}
	if o.HasPayUOrder() && n.Order.OrderID != "" && o.PayUOrderID.String != n.Order.OrderID {
		s.log.Warn("payu notification for a different payment",
			zap.String("order_id", o.ID),
			zap.String("payu_order_id", n.Order.OrderID))
		return nil
	}

	_, err = s.applyPaymentStatus(ctx, o, n.Order.Status)
	return err
}

// applyPaymentStatus moves the payment forward according to a remote PayU
// status. Statuses that do not map, or that would move backwards, leave the
// order untouched.
func (s *Service) applyPaymentStatus(ctx context.Context, o model.Order, remote string) (model.Order, error) {
	to, ok := payu.MapStatus(remote)
	if !ok || o.PaymentStatus == to {
		return o, nil
	}
	if !o.PaymentStatus.CanTransition(to) {
		s.log.Info("ignoring payment status regression",
			zap.String("order_id", o.ID),
			zap.String("from", string(o.PaymentStatus)),
			zap.String("to", string(to)))
		return o, nil
	}

	err := s.store.UpdatePaymentStatus(ctx, o.ID, o.PaymentStatus, to, s.now())
	if errors.Is(err, store.ErrStaleState) {
		// another request applied a status first
		return s.store.GetOrder(ctx, o.ID)
	}
	if err != nil {
		return o, err
	}
	updated, err := s.store.GetOrder(ctx, o.ID)
	if err != nil {
		return o, err
	}
	s.log.Info("payment status updated",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.PaymentStatus)),
		zap.String("to", string(to)))

	s.background("publish order.payment_updated", func(ctx context.Context) error {
		s.publish(ctx, events.OrderPaymentUpdated, updated)
		return nil
	})
	if to == model.PaymentCompleted {
		s.sendMail("payment confirmation", func() (mailer.Message, error) { return mailer.PaymentConfirmation(updated) })
		if s.opts.AutoInvoice && s.invoices != nil {
			s.background("auto invoice", func(ctx context.Context) error {
				_, err := s.invoice(ctx, updated)
				return err
			})
		}
	}
	return updated, nil
}
