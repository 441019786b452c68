package view_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/catalog"
	"github.com/solkant/solkant/internal/clients"
	"github.com/solkant/solkant/internal/dashboard"
	"github.com/solkant/solkant/internal/documents"
	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func render(t *testing.T, name string, data view.TemplateData) string {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	require.NoError(t, engine.RenderStatus(rec, http.StatusOK, name, data))
	return rec.Body.String()
}

func TestLoginPageCarriesCSRFToken(t *testing.T) {
	body := render(t, "pages/auth/login.html", view.TemplateData{
		Title:     "Connexion",
		CSRFToken: "tok123",
		Flash:     &shared.FlashMessage{Kind: "success", Message: "Compte créé"},
		Data: map[string]any{
			"Form":   map[string]any{"Email": "camille@example.com"},
			"Errors": map[string]string{"general": "Identifiants invalides"},
		},
	})
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `name="csrf_token" value="tok123"`)
	assert.Contains(t, body, "Identifiants invalides")
	assert.Contains(t, body, "camille@example.com")
	assert.Contains(t, body, "Compte créé")
	assert.NotContains(t, body, "Déconnexion")
}

func TestDashboardPage(t *testing.T) {
	tenant := shared.Tenant{UserID: 1, BusinessID: 2, Email: "a@b.c"}
	body := render(t, "pages/dashboard/index.html", view.TemplateData{
		Title:       "Tableau de bord",
		CurrentPath: "/",
		Tenant:      &tenant,
		Data: dashboard.Stats{
			Clients:        3,
			Services:       4,
			QuotesByStatus: map[quotes.Status]int{quotes.StatusDraft: 2, quotes.StatusAccepted: 1},
			AcceptedMonth:  d("150"),
			Recent: []dashboard.RecentQuote{
				{ID: 9, QuoteNumber: "DEVIS-2025-009", Status: quotes.StatusAccepted, ClientName: "Léa Martin", Total: d("150"), CreatedAt: time.Now()},
			},
		},
	})
	assert.Contains(t, body, "DEVIS-2025-009")
	assert.Contains(t, body, "Léa Martin")
	assert.Contains(t, body, "Déconnexion")
	assert.Contains(t, body, `href="/quotes/9"`)
}

func TestQuoteShowPage(t *testing.T) {
	clientID := int64(7)
	valid := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	q := &quotes.Quote{
		ID:           5,
		ClientID:     &clientID,
		Client:       &quotes.ClientRef{ID: 7, FirstName: "Léa", LastName: "Martin", Email: "lea@example.com"},
		QuoteNumber:  "DEVIS-2025-005",
		Status:       quotes.StatusSent,
		Items:        []quotes.Item{{Name: "Manucure", UnitPrice: d("25"), Quantity: 2, LineTotal: d("50")}},
		Subtotal:     d("50"),
		Discount:     d("10"),
		DiscountType: pricing.DiscountPercentage,
		Total:        d("45"),
		ValidUntil:   &valid,
		CreatedAt:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	body := render(t, "pages/quotes/show.html", view.TemplateData{CSRFToken: "tok", Data: map[string]any{"Quote": q}})
	assert.Contains(t, body, "DEVIS-2025-005")
	assert.Contains(t, body, `href="/clients/7"`)
	assert.Contains(t, body, `action="/quotes/5/accept"`)
	assert.NotContains(t, body, `action="/quotes/5/delete"`)
	assert.Contains(t, body, "1 avril 2025")
}

type quoteFormStub struct {
	ClientID     int64
	Discount     string
	DiscountType string
	Notes        string
	ValidUntil   string
	Items        []quoteLineStub
	PackageIDs   []int64
}

func (f quoteFormStub) HasPackage(id int64) bool {
	for _, p := range f.PackageIDs {
		if p == id {
			return true
		}
	}
	return false
}

type quoteLineStub struct {
	ServiceID   string
	PackageID   string
	Name        string
	Description string
	UnitPrice   string
	Quantity    string
}

func TestQuoteFormPage(t *testing.T) {
	body := render(t, "pages/quotes/form.html", view.TemplateData{
		Title:     "Nouveau devis",
		CSRFToken: "tok",
		Data: map[string]any{
			"Quote": (*quotes.Quote)(nil),
			"Form": quoteFormStub{
				ClientID:   7,
				PackageIDs: []int64{3},
				Items:      []quoteLineStub{{ServiceID: "11", Name: "Manucure", UnitPrice: "25.00", Quantity: "2"}},
			},
			"Clients":  []clients.Client{{ID: 7, FirstName: "Léa", LastName: "Martin"}},
			"Services": []catalog.Service{{ID: 11, Name: "Manucure", Price: d("25")}},
			"Packages": []catalog.Package{{ID: 3, Name: "Duo", Items: []catalog.PackageItem{{ServiceName: "Manucure", Price: d("25"), Quantity: 2}}}},
			"Errors":   map[string]string{"clientId": "Client introuvable"},
		},
	})
	assert.Contains(t, body, `<option value="7" selected>`)
	assert.Contains(t, body, `<option value="11" selected>`)
	assert.Contains(t, body, `name="package_id" value="3" checked`)
	assert.Contains(t, body, "Client introuvable")
	assert.Contains(t, body, `action="/quotes"`)
}

func TestErrorPage(t *testing.T) {
	body := render(t, "pages/error.html", view.TemplateData{Data: map[string]any{"Status": 404, "Message": "Introuvable"}})
	assert.Contains(t, body, "Erreur 404")
	assert.Contains(t, body, "Introuvable")
}

func TestBillingPage(t *testing.T) {
	body := render(t, "pages/billing/index.html", view.TemplateData{
		CSRFToken: "tok",
		Data: map[string]any{
			"Business": &businesses.Business{ID: 1, SubscriptionStatus: businesses.SubscriptionNone},
			"Enabled":  true,
			"Checkout": "cancel",
		},
	})
	assert.Contains(t, body, `value="monthly"`)
	assert.Contains(t, body, "Le paiement a été annulé")
	assert.NotContains(t, body, "/billing/portal")
}

func TestQuoteDocumentTemplate(t *testing.T) {
	engine, err := view.NewEngine()
	require.NoError(t, err)
	doc := documents.QuoteDocument{
		Issuer:        documents.Issuer{Name: "Institut Éclat", Siret: "12345678900012", VATMention: "TVA non applicable"},
		Number:        "DEVIS-2025-001",
		IssuedAt:      time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		ClientName:    "Léa Martin",
		Lines:         []documents.Line{{Name: "Soin visage", UnitPrice: d("60"), Quantity: 1, Total: d("60")}},
		Subtotal:      d("60"),
		Discount:      d("6"),
		DiscountLabel: "Remise (10 %)",
		Total:         d("54"),
	}
	var buf bytes.Buffer
	require.NoError(t, engine.Execute(&buf, "documents/quote_document.html", doc))
	out := buf.String()
	assert.Contains(t, out, "DEVIS-2025-001")
	assert.Contains(t, out, "Remise (10 %)")
	assert.Contains(t, out, "SIRET 12345678900012")
	assert.Contains(t, out, "5 mars 2025")

	buf.Reset()
	require.NoError(t, engine.Execute(&buf, "emails/password_reset.html", map[string]any{
		"Name": "Camille", "Link": "https://app.test/auth/reset?token=abc", "Expires": time.Hour,
	}))
	assert.Contains(t, buf.String(), "https://app.test/auth/reset?token=abc")
	assert.Contains(t, buf.String(), "60 minutes")
}
