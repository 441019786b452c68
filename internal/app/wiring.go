package app

import (
	"log/slog"

	"github.com/solkant/solkant/internal/documents"
	"github.com/solkant/solkant/internal/mail"
	"github.com/solkant/solkant/internal/observability"
	"github.com/solkant/solkant/report"
)

// NewMailSender returns the provider selected by MAIL_PROVIDER.
func NewMailSender(cfg *Config, logger *slog.Logger) mail.Sender {
	if cfg.MailProvider == MailProviderResend {
		return mail.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom)
	}
	return mail.NewLogSender(logger)
}

// NewDocuments wires quote rendering. With Gotenberg selected the native
// engine stays as fallback.
func NewDocuments(cfg *Config, templates documents.Executor, issuers documents.BusinessSource, metrics *observability.Metrics, logger *slog.Logger) *documents.Service {
	html := documents.NewHTMLRenderer(templates)
	engines := []documents.PDFEngine{}
	if cfg.PDFEngine == PDFEngineGotenberg {
		engines = append(engines, documents.NewGotenbergEngine(html, report.NewClient(cfg.GotenbergURL)))
	}
	engines = append(engines, documents.NewNativeEngine())
	return documents.NewService(issuers, html, metrics, logger, engines...)
}
