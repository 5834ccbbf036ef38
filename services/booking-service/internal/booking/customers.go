package booking

import (
	"context"
	"errors"

	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
)

func (s *Service) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Customer{}, notFound("customer", id)
	}
	return c, err
}

func (s *Service) ListCustomers(ctx context.Context, search string, limit int) ([]model.Customer, error) {
	return s.store.ListCustomers(ctx, model.CustomerFilter{Search: search, Limit: limit})
}

// CustomerAppointments lists every appointment of a customer, oldest first.
func (s *Service) CustomerAppointments(ctx context.Context, id string) ([]model.AppointmentView, error) {
	if _, err := s.GetCustomer(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAppointments(ctx, model.AppointmentFilter{CustomerID: id})
}

type CustomerUpdate struct {
	Name  string
	Email string
	Phone string
}

// CreateCustomer registers a customer, or refreshes name and phone when the email is
// already known. created reports whether a new record was made.
func (s *Service) CreateCustomer(ctx context.Context, u CustomerUpdate) (model.Customer, bool, error) {
	c, err := customerFields(u)
	if err != nil {
		return model.Customer{}, false, err
	}
	cust, created, err := s.store.UpsertCustomer(ctx, c, s.now())
	if err != nil {
		return model.Customer{}, false, err
	}
	if created {
		s.logger.Info("customer created", "customer_id", cust.ID)
	}
	return cust, created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, u CustomerUpdate) (model.Customer, error) {
	fields, err := customerFields(u)
	if err != nil {
		return model.Customer{}, err
	}
	fields.ID = id
	fields.UpdatedAt = s.now()

	c, err := s.store.UpdateCustomer(ctx, fields)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return model.Customer{}, notFound("customer", id)
	case errors.Is(err, storage.ErrDuplicate):
		return model.Customer{}, &Error{Kind: ErrConflict, Field: "email", Reason: "another customer uses this email"}
	case err != nil:
		return model.Customer{}, err
	}
	return c, nil
}

// DeleteCustomer refuses while any appointment still references the customer.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	err := s.store.DeleteCustomer(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return notFound("customer", id)
	case errors.Is(err, storage.ErrReferenced):
		return conflict("customer has appointments; delete them first")
	case err != nil:
		return err
	}
	s.logger.Info("customer deleted", "customer_id", id)
	return nil
}

func customerFields(u CustomerUpdate) (model.Customer, error) {
	name, err := requiredText("name", u.Name, maxNameLen)
	if err != nil {
		return model.Customer{}, err
	}
	email, err := normalizeEmail(u.Email)
	if err != nil {
		return model.Customer{}, err
	}
	phone, err := requiredText("phone", u.Phone, maxPhoneLen)
	if err != nil {
		return model.Customer{}, err
	}
	return model.Customer{Name: name, Email: email, Phone: phone}, nil
}
