package documents

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/report"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var tenant = shared.Tenant{UserID: 1, BusinessID: 10}

type businessStub struct{ err error }

func (b businessStub) Get(_ context.Context, id int64) (*businesses.Business, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &businesses.Business{ID: id, Name: "Institut Rose", Siret: "12345678900011", VATMention: "TVA non applicable, art. 293 B du CGI"}, nil
}

type textExecutor struct{ tmpl *template.Template }

func (e textExecutor) Execute(w io.Writer, name string, data any) error {
	return e.tmpl.ExecuteTemplate(w, name, data)
}

func newExecutor(t *testing.T) textExecutor {
	t.Helper()
	tmpl := template.Must(template.New(documentTemplate).Parse(
		`{{.Issuer.Name}}|{{.Number}}|{{.ClientName}}|{{range .Lines}}{{.Name}};{{end}}|{{if .HasDiscount}}{{.DiscountLabel}}{{end}}`))
	return textExecutor{tmpl: tmpl}
}

func sampleQuote() *quotes.Quote {
	pkgID := int64(3)
	valid := time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC)
	return &quotes.Quote{
		ID:          7,
		BusinessID:  10,
		QuoteNumber: "DEVIS-2025-004",
		Status:      quotes.StatusDraft,
		Client:      &quotes.ClientRef{FirstName: "Léa", LastName: "Martin", Email: "lea@example.com"},
		Items: []quotes.Item{
			{Name: "Rituel mariée", PackageID: &pkgID, UnitPrice: d("110"), Quantity: 1, LineTotal: d("110")},
		},
		Subtotal:     d("110"),
		Discount:     d("11"),
		DiscountType: pricing.DiscountFixed,
		Total:        d("99"),
		ValidUntil:   &valid,
		CreatedAt:    time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestBuildProjectsQuote(t *testing.T) {
	doc := Build(&businesses.Business{Name: "Institut Rose", Siret: "123"}, sampleQuote())

	assert.Equal(t, "Institut Rose", doc.Issuer.Name)
	assert.Equal(t, "Léa Martin", doc.ClientName)
	assert.Equal(t, "lea@example.com", doc.ClientEmail)
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, "110", doc.Lines[0].UnitPrice.String())
	assert.True(t, doc.HasDiscount())
	assert.Equal(t, "11", doc.Discount.String())
	assert.Equal(t, "Remise forfait", doc.DiscountLabel)
	assert.Equal(t, "DEVIS-2025-004.pdf", doc.FileName())
}

func TestBuildDeletedClient(t *testing.T) {
	q := sampleQuote()
	q.Client = nil
	doc := Build(nil, q)
	assert.Equal(t, "Client supprimé", doc.ClientName)
	assert.Empty(t, doc.ClientEmail)
}

func TestBuildPercentageLabel(t *testing.T) {
	q := sampleQuote()
	q.Items[0].PackageID = nil
	q.DiscountType = pricing.DiscountPercentage
	q.Discount = d("10")
	doc := Build(nil, q)
	assert.True(t, strings.HasPrefix(doc.DiscountLabel, "Remise (10"))
}

func TestBuildWithoutDiscount(t *testing.T) {
	q := sampleQuote()
	q.Total = q.Subtotal
	assert.False(t, Build(nil, q).HasDiscount())
}

func TestPreviewRendersTemplate(t *testing.T) {
	svc := NewService(businessStub{}, NewHTMLRenderer(newExecutor(t)), nil, nil)

	out, err := svc.Preview(context.Background(), tenant, sampleQuote())
	require.NoError(t, err)
	assert.Equal(t, "Institut Rose|DEVIS-2025-004|Léa Martin|Rituel mariée;|Remise forfait", string(out))
}

func TestPreviewRejectsForeignQuote(t *testing.T) {
	svc := NewService(businessStub{}, NewHTMLRenderer(newExecutor(t)), nil, nil)

	_, err := svc.Preview(context.Background(), shared.Tenant{UserID: 2, BusinessID: 99}, sampleQuote())
	assert.ErrorIs(t, err, ErrForeignQuote)
}

func TestPreviewIssuerFailure(t *testing.T) {
	svc := NewService(businessStub{err: errors.New("db down")}, NewHTMLRenderer(newExecutor(t)), nil, nil)

	_, err := svc.Preview(context.Background(), tenant, sampleQuote())
	assert.ErrorContains(t, err, "load issuer")
}

func TestNativeEngineProducesPDF(t *testing.T) {
	doc := Build(&businesses.Business{Name: "Institut Rose", Address: "1 rue des Lilas", Siret: "123"}, sampleQuote())
	doc.Notes = "Acompte de 30 % à la signature."

	out, err := NewNativeEngine().Render(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF-"))
}

func TestNativeEngineHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNativeEngine().Render(ctx, QuoteDocument{})
	assert.ErrorIs(t, err, context.Canceled)
}

type engineStub struct {
	name  string
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (e *engineStub) Name() string { return e.name }

func (e *engineStub) Render(ctx context.Context, doc QuoteDocument) ([]byte, error) {
	e.calls.Add(1)
	if e.gate != nil {
		<-e.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.err != nil {
		return nil, e.err
	}
	return []byte("%PDF-" + e.name + "-" + doc.Number), nil
}

func TestPDFFallsBackToNextEngine(t *testing.T) {
	primary := &engineStub{name: "gotenberg", err: errors.New("connection refused")}
	fallback := &engineStub{name: "native"}
	svc := NewService(businessStub{}, nil, nil, nil, primary, fallback)

	out, err := svc.PDF(context.Background(), tenant, sampleQuote())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-native-DEVIS-2025-004", string(out))
	assert.EqualValues(t, 1, primary.calls.Load())
}

func TestPDFAllEnginesFail(t *testing.T) {
	svc := NewService(businessStub{}, nil, nil, nil,
		&engineStub{name: "gotenberg", err: errors.New("timeout")},
		&engineStub{name: "native", err: errors.New("font")},
	)

	_, err := svc.PDF(context.Background(), tenant, sampleQuote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gotenberg: timeout")
	assert.Contains(t, err.Error(), "native: font")
}

func TestPDFSharesConcurrentRenders(t *testing.T) {
	engine := &engineStub{name: "native", gate: make(chan struct{})}
	svc := NewService(businessStub{}, nil, nil, nil, engine)

	var wg sync.WaitGroup
	results := make([][]byte, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.PDF(context.Background(), tenant, sampleQuote())
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	// Let the callers pile up on the in-flight render.
	time.Sleep(50 * time.Millisecond)
	close(engine.gate)
	wg.Wait()

	assert.LessOrEqual(t, engine.calls.Load(), int32(5))
	assert.GreaterOrEqual(t, engine.calls.Load(), int32(1))
	for _, out := range results {
		assert.Equal(t, "%PDF-native-DEVIS-2025-004", string(out))
	}
}

func TestPDFSharedRenderSurvivesFirstCallerCancel(t *testing.T) {
	engine := &engineStub{name: "native", gate: make(chan struct{})}
	svc := NewService(businessStub{}, nil, nil, nil, engine)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.PDF(first, tenant, sampleQuote())
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return engine.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan []byte, 1)
	go func() {
		out, err := svc.PDF(context.Background(), tenant, sampleQuote())
		assert.NoError(t, err)
		second <- out
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared render")
	}

	close(engine.gate)
	select {
	case out := <-second:
		assert.Equal(t, "%PDF-native-DEVIS-2025-004", string(out))
	case <-time.After(time.Second):
		t.Fatal("second caller never received the rendering")
	}
}

func TestGotenbergEnginePostsRenderedHTML(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("files")
		require.NoError(t, err)
		body, _ := io.ReadAll(file)
		received = string(body)
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	engine := NewGotenbergEngine(NewHTMLRenderer(newExecutor(t)), report.NewClient(srv.URL))
	out, err := engine.Render(context.Background(), Build(&businesses.Business{Name: "Institut Rose"}, sampleQuote()))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(out))
	assert.Contains(t, received, "DEVIS-2025-004")
	assert.Equal(t, "gotenberg", engine.Name())
}
