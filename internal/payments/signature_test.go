package payments

import (
	"errors"
	"testing"
)

func TestSignatureVerifierRoundTrip(t *testing.T) {
	verifier, err := NewSignatureVerifier("whsec_test")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}

	signature := verifier.Sign("order_ABC", "pay_XYZ")
	if len(signature) != 64 {
		t.Fatalf("expected hex sha256 digest, got %q", signature)
	}
	if err := verifier.Verify("order_ABC", "pay_XYZ", signature); err != nil {
		t.Fatalf("expected signature to verify: %v", err)
	}
}

func TestSignatureVerifierRejectsTampering(t *testing.T) {
	verifier, _ := NewSignatureVerifier("whsec_test")
	signature := verifier.Sign("order_ABC", "pay_XYZ")

	cases := map[string][3]string{
		"different payment": {"order_ABC", "pay_OTHER", signature},
		"different order":   {"order_DEF", "pay_XYZ", signature},
		"not hex":           {"order_ABC", "pay_XYZ", "zz-not-hex"},
		"empty":             {"order_ABC", "pay_XYZ", ""},
		"truncated":         {"order_ABC", "pay_XYZ", signature[:20]},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if err := verifier.Verify(tc[0], tc[1], tc[2]); !errors.Is(err, ErrSignatureMismatch) {
				t.Fatalf("expected mismatch, got %v", err)
			}
		})
	}

	other, _ := NewSignatureVerifier("another_secret")
	if err := other.Verify("order_ABC", "pay_XYZ", signature); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected mismatch for different secret, got %v", err)
	}
}

func TestNewSignatureVerifierRequiresSecret(t *testing.T) {
	if _, err := NewSignatureVerifier("  "); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
