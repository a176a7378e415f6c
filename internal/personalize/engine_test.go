package personalize

import (
	"testing"

	"github.com/luisant/mailcore/internal/domain"
)

func strptr(s string) *string { return &s }

func TestRender(t *testing.T) {
	e := New()

	tests := []struct {
		name string
		tmpl string
		rec  domain.Recipient
		want string
	}{
		{
			name: "first name substituted",
			tmpl: "Hi {{firstName}}",
			rec:  domain.Recipient{Email: "ann@example.com", FirstName: strptr("Ann")},
			want: "Hi Ann",
		},
		{
			name: "missing field renders empty",
			tmpl: "Hi {{firstName}}",
			rec:  domain.Recipient{Email: "x@example.com"},
			want: "Hi ",
		},
		{
			name: "custom fields",
			tmpl: "{{firstName}} at {{company}}, {{phone}}",
			rec: domain.Recipient{
				Email:        "ann@acme.com",
				FirstName:    strptr("Ann"),
				CustomFields: map[string]string{"company": "Acme", "phone": "555-0100"},
			},
			want: "Ann at Acme, 555-0100",
		},
		{
			name: "email binding",
			tmpl: "Sent to {{email}}",
			rec:  domain.Recipient{Email: "bob@example.com"},
			want: "Sent to bob@example.com",
		},
		{
			name: "no placeholders is a no-op",
			tmpl: "Hi Ann, welcome aboard.",
			rec:  domain.Recipient{Email: "ann@example.com"},
			want: "Hi Ann, welcome aboard.",
		},
		{
			name: "default filter",
			tmpl: `Hi {{firstName | default: "there"}}`,
			rec:  domain.Recipient{Email: "x@example.com"},
			want: "Hi there",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Render(tt.tmpl, &tt.rec)
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	e := New()
	rec := domain.Recipient{Email: "ann@example.com", FirstName: strptr("Ann")}

	once := e.Render("Hello {{firstName}}!", &rec)
	twice := e.Render(once, &rec)
	if once != twice {
		t.Errorf("re-render changed output: %q -> %q", once, twice)
	}
}

func TestRenderBadTemplateFallsBack(t *testing.T) {
	e := New()
	rec := domain.Recipient{Email: "ann@example.com"}

	tmpl := "Hello {{ % broken"
	if got := e.Render(tmpl, &rec); got != tmpl {
		t.Errorf("broken template should render as-is, got %q", got)
	}
}

func TestCustomFieldsDoNotShadowBuiltins(t *testing.T) {
	e := New()
	rec := domain.Recipient{
		Email:        "real@example.com",
		CustomFields: map[string]string{"email": "spoof@example.com"},
	}
	if got := e.Render("{{email}}", &rec); got != "real@example.com" {
		t.Errorf("email binding = %q, want recipient email", got)
	}
}
