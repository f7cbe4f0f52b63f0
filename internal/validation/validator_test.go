package validation

import "testing"

type plotProbe struct {
	Plot string `validate:"required,plot"`
}

type phoneProbe struct {
	Phone string `validate:"required,phone"`
}

func TestPlotTag(t *testing.T) {
	val, err := New()
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	for _, plot := range []string{"A-01", "B14", "Block 3/Plot 7"} {
		if err := val.Struct(plotProbe{Plot: plot}); err != nil {
			t.Errorf("expected %q to be a valid plot: %v", plot, err)
		}
	}
	for _, plot := range []string{"", " leading", "a#b", "-starts-with-dash"} {
		if err := val.Struct(plotProbe{Plot: plot}); err == nil {
			t.Errorf("expected %q to be rejected", plot)
		}
	}
}

func TestPhoneTag(t *testing.T) {
	val, err := New()
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	for _, phone := range []string{"+2348012345678", "08012345678", "1234567"} {
		if err := val.Struct(phoneProbe{Phone: phone}); err != nil {
			t.Errorf("expected %q to be a valid phone: %v", phone, err)
		}
	}
	for _, phone := range []string{"123", "not-a-phone", "+234 801 234 5678"} {
		if err := val.Struct(phoneProbe{Phone: phone}); err == nil {
			t.Errorf("expected %q to be rejected", phone)
		}
	}
}
