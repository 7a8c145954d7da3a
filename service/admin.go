package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"acro-shop/cloudinary"
	"acro-shop/fakturownia"
	"acro-shop/mailer"
	"acro-shop/model"
	"acro-shop/store"
)

func (s *Service) ListOrders(ctx context.Context, status model.OrderStatus, page, limit int) (OrderPage, error) {
	if status != "" && !status.Valid() {
		return OrderPage{}, invalid("unknown status %q", status)
	}
	return s.listOrders(ctx, store.OrderFilter{Status: status}, page, limit)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, to model.OrderStatus) (OrderDTO, error) {
	if !to.Valid() {
		return OrderDTO{}, invalid("unknown status %q", to)
	}
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return OrderDTO{}, err
	}
	if !o.Status.CanTransition(to) {
		return OrderDTO{}, ErrInvalidTransition
	}
	err = s.store.UpdateOrderStatus(ctx, id, o.Status, to)
	if errors.Is(err, store.ErrStaleState) {
		return OrderDTO{}, ErrInvalidTransition
	}
	if err != nil {
		return OrderDTO{}, err
	}
	s.log.Info("order status changed",
		zap.String("order_id", id),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)))

	o, err = s.store.GetOrder(ctx, id)
	if err != nil {
		return OrderDTO{}, err
	}
	return toOrderDTO(o), nil
}

// CreateInvoice issues the invoice for an order on demand. An order is
// invoiced at most once.
func (s *Service) CreateInvoice(ctx context.Context, orderID string) (fakturownia.Issued, error) {
	if s.invoices == nil {
		return fakturownia.Issued{}, ErrNotConfigured
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return fakturownia.Issued{}, err
	}
	return s.invoice(ctx, o)
}

func (s *Service) invoice(ctx context.Context, o model.Order) (fakturownia.Issued, error) {
	if o.InvoiceID.Valid {
		return fakturownia.Issued{}, ErrAlreadyInvoiced
	}

	inv := fakturownia.Invoice{
		OrderNumber: o.OrderNumber,
		Buyer: fakturownia.Party{
			Name:       o.Address.Name,
			Email:      o.Email,
			Street:     o.Address.Street,
			City:       o.Address.City,
			PostalCode: o.Address.PostalCode,
			Country:    o.Address.Country,
			Phone:      o.Address.Phone,
			TaxNo:      o.BuyerTaxNo,
		},
		Shipping:    o.ShippingCost,
		ShippingTag: o.ShippingMethod,
	}
	if o.BuyerCompany != "" {
		inv.Buyer.Name = o.BuyerCompany
	}
	if o.PaidAt.Valid {
		inv.PaidAt = o.PaidAt.Time
	}
	for _, it := range o.Items {
		name := it.Name
		if it.Size != "" {
			name += " (" + it.Size + ")"
		}
		inv.Lines = append(inv.Lines, fakturownia.Line{Name: name, Quantity: it.Quantity, GrossPrice: it.Price})
	}

	issued, err := s.invoices.CreateInvoice(ctx, inv)
	if err != nil {
		return fakturownia.Issued{}, &GatewayError{Gateway: "fakturownia", Err: err}
	}
	if err := s.store.SetInvoice(ctx, o.ID, issued.ID, issued.Number); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			s.log.Error("invoice issued twice", zap.String("order_id", o.ID), zap.Int64("invoice_id", issued.ID))
			return fakturownia.Issued{}, ErrAlreadyInvoiced
		}
		return fakturownia.Issued{}, err
	}
	s.log.Info("invoice created",
		zap.String("order_id", o.ID),
		zap.Int64("invoice_id", issued.ID),
		zap.String("number", issued.Number))

	if s.opts.SendInvoice {
		if err := s.invoices.SendByEmail(ctx, issued.ID); err != nil {
			s.log.Warn("invoice email failed", zap.Int64("invoice_id", issued.ID), zap.Error(err))
		}
	}
	return issued, nil
}

func (s *Service) ListImages(ctx context.Context, prefix, cursor string, limit int) (cloudinary.Page, error) {
	if s.images == nil {
		return cloudinary.Page{}, ErrNotConfigured
	}
	page, err := s.images.ListImages(ctx, prefix, cursor, limit)
	if err != nil {
		return cloudinary.Page{}, &GatewayError{Gateway: "cloudinary", Err: err}
	}
	return page, nil
}

// SendContact forwards a contact form message to the shop inbox. Unlike order
// emails the send error is returned to the caller.
func (s *Service) SendContact(ctx context.Context, c mailer.Contact) error {
	if s.opts.ContactInbox == "" {
		return ErrNotConfigured
	}
	msg, err := mailer.ContactMessage(s.opts.ContactInbox, c)
	if err != nil {
		return err
	}
	return s.mail.Send(ctx, msg)
}
