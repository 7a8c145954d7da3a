package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"acro-shop/auth"
	"acro-shop/model"
)

type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Phone     string `json:"phone" validate:"max=30"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput, sessionID string) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || len(in.Password) < 8 {
		return AuthResult{}, invalid("email and a password of at least 8 characters are required")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}
	u := model.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return AuthResult{}, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	return s.signIn(ctx, u, sessionID)
}

func (s *Service) Login(ctx context.Context, in LoginInput, sessionID string) (AuthResult, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if errors.Is(err, ErrNotFound) {
		return AuthResult{}, ErrUnauthorized
	}
	if err != nil {
		return AuthResult{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, in.Password) {
		return AuthResult{}, ErrUnauthorized
	}
	if !u.IsActive {
		return AuthResult{}, ErrForbidden
	}
	return s.signIn(ctx, u, sessionID)
}

// signIn issues a token and moves the guest cart of sessionID, if any, to u.
func (s *Service) signIn(ctx context.Context, u model.User, sessionID string) (AuthResult, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return AuthResult{}, err
	}
	if sessionID != "" {
		if err := s.store.MergeGuestCart(ctx, sessionID, u.ID); err != nil {
			s.log.Warn("guest cart merge failed", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	return AuthResult{Token: token, User: u}, nil
}

func (s *Service) Me(ctx context.Context, userID string) (model.User, error) {
	return s.store.GetUser(ctx, userID)
}

// Authenticate resolves a bearer token to an active user.
func (s *Service) Authenticate(ctx context.Context, token string) (model.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return model.User{}, ErrUnauthorized
	}
	u, err := s.store.GetUser(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return model.User{}, ErrUnauthorized
	}
	if err != nil {
		return model.User{}, err
	}
	if !u.IsActive {
		return model.User{}, ErrUnauthorized
	}
	return u, nil
}
