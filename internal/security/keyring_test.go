package security

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func openMock(t *testing.T) *KeyringStore {
	t.Helper()
	keyring.MockInit()
	ks, err := OpenKeyring()
	if err != nil {
		t.Fatalf("OpenKeyring() error = %v", err)
	}
	return ks
}

func TestKeyringStore_PasswordRoundTrip(t *testing.T) {
	ks := openMock(t)

	if err := ks.StorePassword("192.168.1.20", 22, "HwHiAiUser", "s3cret:with@chars 密码"); err != nil {
		t.Fatalf("StorePassword() error = %v", err)
	}
	got, err := ks.Password("192.168.1.20", 22, "HwHiAiUser")
	if err != nil {
		t.Fatalf("Password() error = %v", err)
	}
	if got != "s3cret:with@chars 密码" {
		t.Errorf("Password() = %q", got)
	}

	if got, _ := ks.Password("192.168.1.20", 2222, "HwHiAiUser"); got != "" {
		t.Errorf("Password() for other port = %q, want empty", got)
	}
}

func TestKeyringStore_Forget(t *testing.T) {
	ks := openMock(t)

	if err := ks.StorePassword("npu01", 22, "train", "p"); err != nil {
		t.Fatal(err)
	}
	if err := ks.ForgetPassword("npu01", 22, "train"); err != nil {
		t.Fatalf("ForgetPassword() error = %v", err)
	}
	if got, err := ks.Password("npu01", 22, "train"); err != nil || got != "" {
		t.Errorf("Password() after forget = %q, %v", got, err)
	}
	if err := ks.ForgetPassword("npu01", 22, "train"); err != nil {
		t.Errorf("second ForgetPassword() error = %v", err)
	}
}

func TestKeyringStore_CorruptEntry(t *testing.T) {
	ks := openMock(t)
	if err := keyring.Set(Service, account("npu01", 22, "train"), "%%%"); err != nil {
		t.Fatal(err)
	}
	if _, err := ks.Password("npu01", 22, "train"); err == nil {
		t.Error("Password() decoded a corrupt entry")
	}
}

func TestOpenKeyring_Unavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))
	if _, err := OpenKeyring(); !errors.Is(err, ErrKeyringUnavailable) {
		t.Errorf("OpenKeyring() error = %v, want ErrKeyringUnavailable", err)
	}
}
