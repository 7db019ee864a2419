package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"opsconsole/internal/erp"
	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"
)

type stubDocumentBackend struct {
	emailErr   error
	emailCalls int
	lastEmail  erp.EmailRequest
}

func (b *stubDocumentBackend) DocumentURL(orderID, documentType, kind string) (string, error) {
	if kind == model.KindJobWork && documentType == model.DocInvoice {
		return "http://erp.local/api/job-works/" + orderID + "/invoice.pdf", nil
	}
	return "http://erp.local/api/orders/" + orderID + "/" + documentType + ".pdf", nil
}

func (b *stubDocumentBackend) SendDocumentEmail(ctx context.Context, req erp.EmailRequest) error {
	b.emailCalls++
	b.lastEmail = req
	return b.emailErr
}

type fakeShareLogRepo struct {
	mu      sync.Mutex
	entries []model.ShareLog
}

func (r *fakeShareLogRepo) Log(ctx context.Context, entry *model.ShareLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeShareLogRepo) ListByOrder(ctx context.Context, orderID string, page, limit int) ([]model.ShareLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries, int64(len(r.entries)), nil
}

func (r *fakeShareLogRepo) Statistics(ctx context.Context, from, to time.Time) ([]repository.ShareStat, error) {
	return nil, nil
}

func (r *fakeShareLogRepo) last(t *testing.T) model.ShareLog {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		t.Fatal("no share log entries recorded")
	}
	return r.entries[len(r.entries)-1]
}

func newShareFixture(t *testing.T, backend *stubDocumentBackend) (ShareService, *fakeShareLogRepo) {
	t.Helper()
	orders := NewOrderService(&stubOrderSource{regulars: testRegularFeed(), jobWorks: testJobWorkFeed()})
	repo := &fakeShareLogRepo{}
	tokens := middleware.NewDocTokenIssuer([]byte("test-secret"), time.Minute)
	return NewShareService(backend, orders, repo, tokens, "91"), repo
}

func TestShareDownloadCarriesToken(t *testing.T) {
	svc, repo := newShareFixture(t, &stubDocumentBackend{})

	result, err := svc.Share(context.Background(), "", "r1", ShareRequest{
		DocumentType: model.DocInvoice,
		Channel:      "download",
	})
	if err != nil {
		t.Fatalf("Share() = %v", err)
	}
	if result.Channel != model.ChannelDownload {
		t.Errorf("Channel = %q", result.Channel)
	}
	if !strings.Contains(result.URL, "?token=") {
		t.Errorf("URL %q missing viewer token", result.URL)
	}

	entry := repo.last(t)
	if entry.Channel != model.ChannelDownload || entry.DocumentType != model.DocInvoice {
		t.Errorf("log = %+v", entry)
	}
}

func TestShareMessagingNormalizesPhone(t *testing.T) {
	svc, repo := newShareFixture(t, &stubDocumentBackend{})

	result, err := svc.Share(context.Background(), "", "r1", ShareRequest{
		DocumentType: model.DocReceipt,
		Channel:      "messaging",
	})
	if err != nil {
		t.Fatalf("Share() = %v", err)
	}
	// Order's customer phone 9876543210 gains the country prefix.
	if !strings.HasPrefix(result.Link, "https://wa.me/919876543210?text=") {
		t.Errorf("Link = %q", result.Link)
	}

	entry := repo.last(t)
	if entry.Channel != model.ChannelWhatsApp || entry.Recipient != "919876543210" {
		t.Errorf("log = %+v", entry)
	}
}

func TestShareMessagingExplicitRecipient(t *testing.T) {
	svc, _ := newShareFixture(t, &stubDocumentBackend{})

	result, err := svc.Share(context.Background(), "", "r1", ShareRequest{
		DocumentType: model.DocReceipt,
		Channel:      "messaging",
		Recipient:    "+91 98123-45678",
	})
	if err != nil {
		t.Fatalf("Share() = %v", err)
	}
	if !strings.HasPrefix(result.Link, "https://wa.me/919812345678?") {
		t.Errorf("Link = %q, want punctuation stripped", result.Link)
	}
}

func TestShareMessagingNoRecipient(t *testing.T) {
	svc, _ := newShareFixture(t, &stubDocumentBackend{})

	// j1 has no customer phone in the fixture feed.
	_, err := svc.Share(context.Background(), "", "j1", ShareRequest{
		DocumentType: model.DocInvoice,
		Channel:      "messaging",
	})
	if !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("Share() = %v, want ErrNoRecipient", err)
	}
}

func TestShareEmailTransactional(t *testing.T) {
	backend := &stubDocumentBackend{}
	svc, repo := newShareFixture(t, backend)

	result, err := svc.Share(context.Background(), "", "r1", ShareRequest{
		DocumentType: model.DocInvoice,
		Channel:      "email",
		Recipient:    "accounts@sharma.example",
		Message:      "as discussed",
	})
	if err != nil {
		t.Fatalf("Share() = %v", err)
	}
	if result.Channel != model.ChannelEmailSMTP {
		t.Errorf("Channel = %q, want transactional channel", result.Channel)
	}
	if result.Fallback {
		t.Error("Fallback = true on a successful send")
	}
	if backend.lastEmail.Recipient != "accounts@sharma.example" || backend.lastEmail.Message != "as discussed" {
		t.Errorf("email request = %+v", backend.lastEmail)
	}

	entry := repo.last(t)
	if entry.Channel != model.ChannelEmailSMTP {
		t.Errorf("log channel = %q", entry.Channel)
	}
}

func TestShareEmailFallsBackToCompose(t *testing.T) {
	backend := &stubDocumentBackend{emailErr: errors.New("smtp down")}
	svc, repo := newShareFixture(t, backend)

	result, err := svc.Share(context.Background(), "", "r1", ShareRequest{
		DocumentType: model.DocInvoice,
		Channel:      "email",
		Recipient:    "accounts@sharma.example",
	})
	if err != nil {
		t.Fatalf("Share() with failing mailer = %v, want fallback result", err)
	}
	if result.Channel != model.ChannelEmail {
		t.Errorf("Channel = %q, want fallback channel", result.Channel)
	}
	if !result.Fallback {
		t.Error("Fallback = false")
	}
	if !strings.HasPrefix(result.Link, "mailto:accounts@sharma.example?") {
		t.Errorf("Link = %q", result.Link)
	}

	// The trail distinguishes the compose fallback from a transactional send.
	entry := repo.last(t)
	if entry.Channel != model.ChannelEmail {
		t.Errorf("log channel = %q, want %q", entry.Channel, model.ChannelEmail)
	}
}

func TestShareClipboard(t *testing.T) {
	svc, repo := newShareFixture(t, &stubDocumentBackend{})

	result, err := svc.Share(context.Background(), "", "j1", ShareRequest{
		DocumentType: model.DocDeliverySlip,
		Channel:      "clipboard",
	})
	if err != nil {
		t.Fatalf("Share() = %v", err)
	}
	if result.Channel != model.ChannelCopyLink {
		t.Errorf("Channel = %q", result.Channel)
	}

	entry := repo.last(t)
	if entry.Channel != model.ChannelCopyLink || entry.OrderKind != model.KindJobWork {
		t.Errorf("log = %+v", entry)
	}
}

func TestShareUnknownInputs(t *testing.T) {
	svc, _ := newShareFixture(t, &stubDocumentBackend{})
	ctx := context.Background()

	if _, err := svc.Share(ctx, "", "missing", ShareRequest{DocumentType: model.DocInvoice, Channel: "download"}); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("missing order = %v, want ErrOrderNotFound", err)
	}
	if _, err := svc.Share(ctx, "", "r1", ShareRequest{DocumentType: "poster", Channel: "download"}); err == nil {
		t.Error("unknown document type accepted")
	}
	if _, err := svc.Share(ctx, "", "r1", ShareRequest{DocumentType: model.DocInvoice, Channel: "fax"}); err == nil {
		t.Error("unknown channel accepted")
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"9876543210", "919876543210"},
		{"+91 98765 43210", "919876543210"},
		{"98765-43210", "919876543210"},
		{"919876543210", "919876543210"},
		// Ten digits after stripping, so the prefix rule applies even to
		// numbers that look like landlines.
		{"044-2345678", "910442345678"},
		{"1800-123-4567-89", "1800123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePhone(tt.in, "91"); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWhatsAppLinkEncodesText(t *testing.T) {
	order := &model.Order{Number: "ORD-0001", CustomerName: "Sharma Traders"}
	link := buildWhatsAppLink("919876543210", order, model.DocInvoice, "http://erp.local/doc.pdf?token=abc")

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("link does not parse: %v", err)
	}
	text := u.Query().Get("text")
	if !strings.Contains(text, "Sharma Traders") || !strings.Contains(text, "ORD-0001") {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(text, "http://erp.local/doc.pdf?token=abc") {
		t.Errorf("text %q missing document URL", text)
	}
}
