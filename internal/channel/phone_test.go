package channel

import "testing"

func TestNormalizePhone_ChannelSuffix(t *testing.T) {
	if got := NormalizePhone("51987654321@c.us", "51"); got != "51987654321" {
		t.Fatalf("expected 51987654321, got %q", got)
	}
}

func TestNormalizePhone_LocalNumber(t *testing.T) {
	if got := NormalizePhone("987654321", "51"); got != "51987654321" {
		t.Fatalf("expected prefix completion, got %q", got)
	}
}

func TestNormalizePhone_StripsNonDigits(t *testing.T) {
	if got := NormalizePhone("+51 987-654-321", "51"); got != "51987654321" {
		t.Fatalf("expected digits only, got %q", got)
	}
}

func TestNormalizePhone_Empty(t *testing.T) {
	if got := NormalizePhone("", "51"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestNormalizePhone_NoPrefixConfigured(t *testing.T) {
	if got := NormalizePhone("987654321", ""); got != "987654321" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestIsUserIdentity(t *testing.T) {
	if !isUserIdentity("51987654321@c.us") {
		t.Fatal("user identity not recognized")
	}
	if isUserIdentity("123456789@g.us") {
		t.Fatal("group identity should not count as user")
	}
}
