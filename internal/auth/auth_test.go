package auth

import (
	"context"
	"errors"
	"testing"

	"nirmaan/internal/core"
	"nirmaan/internal/ledger"
	"nirmaan/internal/log"
	"nirmaan/internal/storage"
)

const muzahir = "9720353137"

func newService(t *testing.T) (*Service, *storage.MemoryKV, *ledger.Store) {
	t.Helper()
	kv := storage.NewMemoryKV()
	store := ledger.Open(context.Background(), kv, ledger.WithLogger(log.Discard()))
	return NewService(kv, store, log.Discard()), kv, store
}

func TestIdentify(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	id, has, err := svc.Identify(ctx, " 8954555074 ")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if id.Partner != core.PartnerSalik || id.Role != "Manager" || has {
		t.Errorf("got %+v has=%v", id, has)
	}

	if _, _, err := svc.Identify(ctx, "1234567890"); !errors.Is(err, ErrUnknownPhone) {
		t.Errorf("unknown phone error = %v", err)
	}
}

func TestCreatePasswordValidation(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		wantErr  error
	}{
		{"too short", "123", "123", ErrWeakPassword},
		{"mismatch", "1234", "1235", ErrPasswordMismatch},
		{"ok", "1234", "1234", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, store := newService(t)
			_, err := svc.CreatePassword(context.Background(), muzahir, tt.password, tt.confirm)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got := store.Auth().IsLoggedIn; got != (tt.wantErr == nil) {
				t.Errorf("IsLoggedIn = %v", got)
			}
		})
	}
}

func TestLoginStoresHashAndSignsIn(t *testing.T) {
	ctx := context.Background()
	svc, kv, store := newService(t)

	if _, err := svc.CreatePassword(ctx, muzahir, "4321", "4321"); err != nil {
		t.Fatalf("CreatePassword: %v", err)
	}
	raw, _, _ := kv.Get(ctx, PasswordKey(muzahir))
	if string(raw) == "4321" || !isHash(raw) {
		t.Fatalf("password stored as %q", raw)
	}

	svc.Logout(ctx)
	if store.Auth().IsLoggedIn {
		t.Fatal("still logged in after Logout")
	}

	if _, err := svc.Login(ctx, muzahir, "0000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}
	id, err := svc.Login(ctx, muzahir, "4321")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	auth := store.Auth()
	if !auth.IsLoggedIn || auth.CurrentUser != core.PartnerMuzahir || auth.Role != id.Role {
		t.Errorf("auth state = %+v", auth)
	}
}

func TestLoginUpgradesLegacyPlainText(t *testing.T) {
	ctx := context.Background()
	svc, kv, _ := newService(t)
	if err := kv.Put(ctx, PasswordKey(muzahir), []byte("9999")); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(ctx, muzahir, "9999"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	raw, _, _ := kv.Get(ctx, PasswordKey(muzahir))
	if !isHash(raw) {
		t.Errorf("legacy password not upgraded: %q", raw)
	}
	if _, err := svc.Login(ctx, muzahir, "9999"); err != nil {
		t.Errorf("Login after upgrade: %v", err)
	}
}

func TestLoginWithoutPassword(t *testing.T) {
	svc, _, _ := newService(t)
	if _, err := svc.Login(context.Background(), muzahir, "1234"); !errors.Is(err, ErrNoPassword) {
		t.Errorf("error = %v, want ErrNoPassword", err)
	}
}

func TestResetPasswordDoesNotSignIn(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newService(t)
	if _, err := svc.CreatePassword(ctx, muzahir, "1111", "1111"); err != nil {
		t.Fatal(err)
	}
	svc.Logout(ctx)

	if err := svc.ResetPassword(ctx, muzahir, "2222", "2222"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if store.Auth().IsLoggedIn {
		t.Error("reset signed the partner in")
	}
	if _, err := svc.Login(ctx, muzahir, "1111"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password error = %v", err)
	}
	if _, err := svc.Login(ctx, muzahir, "2222"); err != nil {
		t.Errorf("new password: %v", err)
	}
}

func TestPasswordsSurviveLedgerReset(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newService(t)
	if _, err := svc.CreatePassword(ctx, muzahir, "1234", "1234"); err != nil {
		t.Fatal(err)
	}
	store.Reset(ctx)

	_, has, err := svc.Identify(ctx, muzahir)
	if err != nil || !has {
		t.Errorf("Identify after reset: has=%v err=%v", has, err)
	}
}
