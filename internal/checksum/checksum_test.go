package checksum

import (
	"testing"

	"github.com/starford/trailguard/internal/models"
)

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("hello"))
	if a != Sum([]byte("hello")) {
		t.Fatal("same input produced different digests")
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64", len(a))
	}
}

func TestContacts_SensitiveToSelectionAndOrder(t *testing.T) {
	a := models.Contact{DisplayName: "Asha", PhoneNumber: "+919876543210", Selected: true}
	b := models.Contact{DisplayName: "Ravi", PhoneNumber: "+919812345678"}

	base := Contacts([]models.Contact{a, b})
	if base != Contacts([]models.Contact{a, b}) {
		t.Fatal("fingerprint not deterministic")
	}
	if base == Contacts([]models.Contact{b, a}) {
		t.Error("order should change the fingerprint")
	}
	b.Selected = true
	if base == Contacts([]models.Contact{a, b}) {
		t.Error("selection should change the fingerprint")
	}
	if Contacts(nil) != Contacts([]models.Contact{}) {
		t.Error("nil and empty should match")
	}
}
