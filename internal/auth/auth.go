// Package auth gates the app behind the two partners' phone numbers and a
// per-device password.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
	"nirmaan/internal/log"
	"nirmaan/internal/storage"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 4

var (
	ErrUnknownPhone       = errors.New("this mobile number is not authorised")
	ErrInvalidCredentials = errors.New("wrong password")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrNoPassword         = errors.New("no password set for this number")
)

// Identity is a partner allowed to sign in.
type Identity struct {
	Phone   string
	Partner core.Partner
	Role    string
}

var identities = map[string]Identity{
	"9720353137": {Phone: "9720353137", Partner: core.PartnerMuzahir, Role: "Principal"},
	"8954555074": {Phone: "8954555074", Partner: core.PartnerSalik, Role: "Manager"},
}

// PasswordKey is the storage key holding the hash for phone.
func PasswordKey(phone string) string {
	return "pass_" + phone
}

// Service checks credentials against the device store and records the
// session in the ledger.
type Service struct {
	kv    storage.KV
	store *ledger.Store
	log   *log.Logger
}

func NewService(kv storage.KV, store *ledger.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default(log.ComponentAuth)
	}
	return &Service{kv: kv, store: store, log: logger.WithComponent(log.ComponentAuth)}
}

func lookup(phone string) (Identity, error) {
	id, ok := identities[strings.TrimSpace(phone)]
	if !ok {
		return Identity{}, ErrUnknownPhone
	}
	return id, nil
}

// Identify resolves phone to a partner and reports whether a password
// has been created for it on this device.
func (s *Service) Identify(ctx context.Context, phone string) (Identity, bool, error) {
	id, err := lookup(phone)
	if err != nil {
		return Identity{}, false, err
	}
	_, ok, err := s.kv.Get(ctx, PasswordKey(id.Phone))
	if err != nil {
		return Identity{}, false, fmt.Errorf("read password: %w", err)
	}
	return id, ok, nil
}

// CreatePassword sets the first password for phone and signs the partner in.
func (s *Service) CreatePassword(ctx context.Context, phone, password, confirm string) (Identity, error) {
	id, err := s.setPassword(ctx, phone, password, confirm)
	if err != nil {
		return Identity{}, err
	}
	s.signIn(ctx, id)
	return id, nil
}

// ResetPassword replaces the password for phone. The caller must log in
// afterwards.
func (s *Service) ResetPassword(ctx context.Context, phone, password, confirm string) error {
	id, err := s.setPassword(ctx, phone, password, confirm)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Password reset", "partner", string(id.Partner))
	return nil
}

func (s *Service) setPassword(ctx context.Context, phone, password, confirm string) (Identity, error) {
	id, err := lookup(phone)
	if err != nil {
		return Identity{}, err
	}
	if len(password) < MinPasswordLength {
		return Identity{}, ErrWeakPassword
	}
	if password != confirm {
		return Identity{}, ErrPasswordMismatch
	}
	if err := s.storeHash(ctx, id.Phone, password); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func (s *Service) storeHash(ctx context.Context, phone, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.kv.Put(ctx, PasswordKey(phone), hash); err != nil {
		return fmt.Errorf("save password: %w", err)
	}
	return nil
}

// Login verifies password for phone. A password stored in plain text by
// an older release is accepted once and replaced with its hash.
func (s *Service) Login(ctx context.Context, phone, password string) (Identity, error) {
	id, err := lookup(phone)
	if err != nil {
		return Identity{}, err
	}
	saved, ok, err := s.kv.Get(ctx, PasswordKey(id.Phone))
	if err != nil {
		return Identity{}, fmt.Errorf("read password: %w", err)
	}
	if !ok {
		return Identity{}, ErrNoPassword
	}

	if isHash(saved) {
		if err := bcrypt.CompareHashAndPassword(saved, []byte(password)); err != nil {
			s.log.WarnContext(ctx, "Login rejected",
				log.FieldErrorType, log.ErrorTypeAuth, "partner", string(id.Partner))
			return Identity{}, ErrInvalidCredentials
		}
	} else {
		if string(saved) != password {
			s.log.WarnContext(ctx, "Login rejected",
				log.FieldErrorType, log.ErrorTypeAuth, "partner", string(id.Partner))
			return Identity{}, ErrInvalidCredentials
		}
		if err := s.storeHash(ctx, id.Phone, password); err != nil {
			s.log.WarnContext(ctx, "Failed to upgrade legacy password", log.FieldError, err.Error())
		}
	}

	s.signIn(ctx, id)
	return id, nil
}

// Logout clears the session.
func (s *Service) Logout(ctx context.Context) {
	s.store.SetAuth(ctx, core.AuthState{})
}

func (s *Service) signIn(ctx context.Context, id Identity) {
	s.store.SetAuth(ctx, core.AuthState{IsLoggedIn: true, CurrentUser: id.Partner, Role: id.Role})
	s.log.InfoContext(ctx, "Partner signed in", "partner", string(id.Partner), "role", id.Role)
}

func isHash(b []byte) bool {
	_, err := bcrypt.Cost(b)
	return err == nil
}
