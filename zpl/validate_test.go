package zpl

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		ok       bool
		found    []string
	}{
		{"clean", "^XA^FO20,20^FDTest^FS^XZ", true, []string{}},
		{"object delete", "^XA^IDE:LOGO.GRF^FO20,20^FDTest^FS^XZ", false, []string{"^ID"}},
		{"lowercase", "^xa^ide:logo.grf^xz", false, []string{"^ID"}},
		{"tilde commands", "^XA~JR~HS^XZ", false, []string{"~JR", "~HS"}},
		{"duplicates collapsed", "^XA^DFE:A.ZPL^FS^DFE:B.ZPL^FS^XZ", false, []string{"^DF"}},
		{"first seen order", "^XA^JUS~NC01^IDR:*.*^XZ", false, []string{"^JU", "~NC", "^ID"}},
		{"recall format", RecallFormatTemplate, false, []string{"^XF"}},
		{"dotless i", "^XA^ıDE:LOGO.GRF^XZ", false, []string{"^ID"}},
		{"long s", "^XA~Pſ^XZ", false, []string{"~PS"}},
		{"dotted capital I", "^XA^İDR:*.*^XZ", false, []string{"^ID"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, found := ValidateTemplate(tc.template)
			if ok != tc.ok {
				t.Errorf("ValidateTemplate() ok = %v, want %v", ok, tc.ok)
			}
			if !reflect.DeepEqual(found, tc.found) {
				t.Errorf("ValidateTemplate() found = %v, want %v", found, tc.found)
			}
		})
	}
}

func TestSanitizeTemplate(t *testing.T) {
	t.Run("removes command and parameters", func(t *testing.T) {
		out := SanitizeTemplate("^XA^IDE:LOGO.GRF^FO20,20^FDTest^FS^XZ")
		if !strings.Contains(out, "^FO20,20^FDTest^FS") {
			t.Errorf("sanitized output lost safe content: %q", out)
		}
		if strings.Contains(out, "^ID") || strings.Contains(out, "LOGO.GRF") {
			t.Errorf("sanitized output still carries delete command: %q", out)
		}
		if out != "^XA^FO20,20^FDTest^FS^XZ" {
			t.Errorf("SanitizeTemplate() = %q", out)
		}
	})

	t.Run("parameters up to end of string", func(t *testing.T) {
		out := SanitizeTemplate("^XA^FDok^FS~NC01")
		if out != "^XA^FDok^FS" {
			t.Errorf("SanitizeTemplate() = %q", out)
		}
	})

	t.Run("multiple occurrences and case", func(t *testing.T) {
		out := SanitizeTemplate("^XA^jus^FDa^FS~jr^idR:X.GRF^XZ")
		if out != "^XA^FDa^FS^XZ" {
			t.Errorf("SanitizeTemplate() = %q", out)
		}
	})

	t.Run("non-ASCII case variants", func(t *testing.T) {
		out := SanitizeTemplate("^XA^ıDE:LOGO.GRF^FDx^FS^XZ")
		if out != "^XA^FDx^FS^XZ" {
			t.Errorf("SanitizeTemplate() = %q", out)
		}
	})

	t.Run("clean template unchanged", func(t *testing.T) {
		tmpl := TemplateSBP100375Full.ZPLTemplate
		if out := SanitizeTemplate(tmpl); out != tmpl {
			t.Error("clean template was modified")
		}
	})
}

func TestSanitizeThenValidate(t *testing.T) {
	inputs := []string{
		"^XA^IDE:LOGO.GRF^FO20,20^FDTest^FS^XZ",
		TemplateStoredFormat.ZPLTemplate,
		RecallFormatTemplate,
		"~HS~WC^HH~JC~RO~PS~PP~DN~DGR:A.GRF,1,1,FF~DYE:F,A,B,1,1,ZZ",
		"^XA^ID^ID^IDx^XZ",
		"^XA^ıDE:LOGO.GRF^FDx^FS^XZ",
		"^XA~Pſ^FDx^FS~pſ^XZ",
	}
	for _, in := range inputs {
		out := SanitizeTemplate(in)
		if ok, found := ValidateTemplate(out); !ok {
			t.Errorf("ValidateTemplate(SanitizeTemplate(%q)) found %v in %q", in, found, out)
		}
		if again := SanitizeTemplate(out); again != out {
			t.Errorf("sanitize is not idempotent: %q -> %q", out, again)
		}
	}
}

func TestCheckTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		reason   string
	}{
		{"empty", "   ", "ZPL template is empty"},
		{"missing start", "^FDx^FS^XZ", "ZPL template must start with ^XA (format start)"},
		{"missing end", "^XA^FDx^FS", "ZPL template must end with ^XZ (format end)"},
		{"dangerous", "^XA^IDE:LOGO.GRF^XZ", "Template contains dangerous ZPL commands that are not allowed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckTemplate(tc.template)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidTemplate) {
				t.Errorf("error %v does not wrap ErrInvalidTemplate", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Reason != tc.reason {
				t.Errorf("Reason = %q, want %q", verr.Reason, tc.reason)
			}
		})
	}

	t.Run("dangerous lists commands", func(t *testing.T) {
		err := CheckTemplate("^XA^IDE:LOGO.GRF^XZ")
		if !strings.HasSuffix(err.Error(), ": ^ID") {
			t.Errorf("Error() = %q", err.Error())
		}
	})

	t.Run("whitespace around format is allowed", func(t *testing.T) {
		if err := CheckTemplate("\n  ^XA^FDok^FS^XZ\n"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestNewValidator_CustomList(t *testing.T) {
	v := NewValidator([]string{"^PQ"})
	if ok, found := v.Validate("^XA^pq5^XZ"); ok || !reflect.DeepEqual(found, []string{"^PQ"}) {
		t.Errorf("Validate() = %v, %v", ok, found)
	}
	if ok, _ := v.Validate("^XA^IDE:X.GRF^XZ"); !ok {
		t.Error("custom validator should not reject commands outside its list")
	}
	if got := v.Sanitize("^XA^PQ5,0,1,Y^XZ"); got != "^XA^XZ" {
		t.Errorf("Sanitize() = %q", got)
	}
}

func TestDeniedCommands_IsCopy(t *testing.T) {
	cmds := DeniedCommands()
	if len(cmds) != 17 {
		t.Fatalf("len(DeniedCommands()) = %d, want 17", len(cmds))
	}
	cmds[0] = "^FD"
	if ok, _ := ValidateTemplate("^XA^FDx^FS^XZ"); !ok {
		t.Error("mutating the returned slice changed the default validator")
	}
}
