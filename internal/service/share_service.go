package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"opsconsole/internal/erp"
	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/google/uuid"
)

// ErrNoRecipient means the channel needs a phone or email and neither was
// supplied nor present on the order.
var ErrNoRecipient = errors.New("no recipient available for this channel")

// documentBackend is the slice of the ERP client the dispatcher uses.
type documentBackend interface {
	DocumentURL(orderID, documentType, kind string) (string, error)
	SendDocumentEmail(ctx context.Context, req erp.EmailRequest) error
}

// ShareRequest asks for one document to go out through one channel.
type ShareRequest struct {
	DocumentType string `json:"document_type" binding:"required,oneof=invoice receipt merged delivery_slip"`
	Channel      string `json:"channel" binding:"required,oneof=download messaging email clipboard"`
	Recipient    string `json:"recipient"` // phone or email; defaults to the order's customer
	Message      string `json:"message"`
}

// ShareResult tells the console what to do: open a URL, follow a deep link,
// copy text, or report that email went out. Fallback marks the mail-compose
// path taken after a failed transactional send.
type ShareResult struct {
	Channel  string `json:"channel"`
	URL      string `json:"url"`
	Link     string `json:"link,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Note     string `json:"note,omitempty"`
}

// ShareService resolves document URLs and dispatches them through the four
// share channels, logging every action locally. Log failures never surface.
type ShareService interface {
	Share(ctx context.Context, userID, orderID string, req ShareRequest) (*ShareResult, error)
	History(ctx context.Context, orderID string, page, limit int) ([]model.ShareLog, int64, error)
}

type shareService struct {
	backend     documentBackend
	orders      OrderService
	shareRepo   repository.ShareLogRepository
	tokens      *middleware.DocTokenIssuer
	countryCode string
}

// NewShareService builds the dispatcher. The token issuer is the only
// credential authority the dispatcher holds; it is passed in explicitly
// rather than read from ambient state.
func NewShareService(
	backend documentBackend,
	orders OrderService,
	shareRepo repository.ShareLogRepository,
	tokens *middleware.DocTokenIssuer,
	countryCode string,
) ShareService {
	if countryCode == "" {
		countryCode = "91"
	}
	return &shareService{
		backend:     backend,
		orders:      orders,
		shareRepo:   shareRepo,
		tokens:      tokens,
		countryCode: countryCode,
	}
}

func (s *shareService) Share(ctx context.Context, userID, orderID string, req ShareRequest) (*ShareResult, error) {
	switch req.DocumentType {
	case model.DocInvoice, model.DocReceipt, model.DocMerged, model.DocDeliverySlip:
	default:
		return nil, fmt.Errorf("unknown document type %q", req.DocumentType)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	docURL, err := s.resolveURL(order, req.DocumentType)
	if err != nil {
		return nil, err
	}

	switch req.Channel {
	case "download":
		s.log(ctx, userID, order, req.DocumentType, model.ChannelDownload, "")
		return &ShareResult{Channel: model.ChannelDownload, URL: docURL}, nil

	case "messaging":
		phone := req.Recipient
		if phone == "" {
			phone = order.CustomerPhone
		}
		if phone == "" {
			return nil, ErrNoRecipient
		}
		normalized := NormalizePhone(phone, s.countryCode)
		link := buildWhatsAppLink(normalized, order, req.DocumentType, docURL)
		s.log(ctx, userID, order, req.DocumentType, model.ChannelWhatsApp, normalized)
		return &ShareResult{Channel: model.ChannelWhatsApp, URL: docURL, Link: link}, nil

	case "email":
		recipient := req.Recipient
		if recipient == "" {
			recipient = order.CustomerEmail
		}
		if recipient == "" {
			return nil, ErrNoRecipient
		}

		sendErr := s.backend.SendDocumentEmail(ctx, erp.EmailRequest{
			OrderID:      order.ID,
			OrderKind:    order.Kind,
			DocumentType: req.DocumentType,
			Recipient:    recipient,
			Message:      req.Message,
		})
		if sendErr == nil {
			s.log(ctx, userID, order, req.DocumentType, model.ChannelEmailSMTP, recipient)
			return &ShareResult{Channel: model.ChannelEmailSMTP, URL: docURL, Note: "email sent"}, nil
		}

		// Transactional send failed: hand the console a mail-compose link
		// instead, and log under the fallback channel so the trail shows
		// which path actually went out.
		log.Printf("share: transactional email failed, falling back to compose link: %v", sendErr)
		link := buildMailtoLink(recipient, order, req.DocumentType, docURL, req.Message)
		s.log(ctx, userID, order, req.DocumentType, model.ChannelEmail, recipient)
		return &ShareResult{
			Channel:  model.ChannelEmail,
			URL:      docURL,
			Link:     link,
			Fallback: true,
			Note:     "transactional email failed; compose link prepared",
		}, nil

	case "clipboard":
		s.log(ctx, userID, order, req.DocumentType, model.ChannelCopyLink, "")
		return &ShareResult{Channel: model.ChannelCopyLink, URL: docURL}, nil

	default:
		return nil, fmt.Errorf("unknown share channel %q", req.Channel)
	}
}

func (s *shareService) History(ctx context.Context, orderID string, page, limit int) ([]model.ShareLog, int64, error) {
	return s.shareRepo.ListByOrder(ctx, orderID, page, limit)
}

// resolveURL builds the document URL with the viewer token embedded as a
// query parameter. The document opens in a context that cannot carry custom
// headers, so the credential has to ride in the URL.
func (s *shareService) resolveURL(order *model.Order, documentType string) (string, error) {
	docURL, err := s.backend.DocumentURL(order.ID, documentType, order.Kind)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(order.ID, documentType)
	if err != nil {
		return "", fmt.Errorf("issue viewer token: %w", err)
	}

	sep := "?"
	if strings.Contains(docURL, "?") {
		sep = "&"
	}
	return docURL + sep + "token=" + url.QueryEscape(token), nil
}

// NormalizePhone strips everything but digits and prefixes the country code
// to bare ten-digit numbers.
func NormalizePhone(phone, countryCode string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	normalized := digits.String()
	if len(normalized) == 10 {
		return countryCode + normalized
	}
	return normalized
}

func buildWhatsAppLink(phone string, order *model.Order, documentType, docURL string) string {
	text := fmt.Sprintf("Dear %s, please find the %s for order %s here: %s",
		order.CustomerName, documentLabel(documentType), order.Number, docURL)
	return "https://wa.me/" + phone + "?text=" + url.QueryEscape(text)
}

func buildMailtoLink(recipient string, order *model.Order, documentType, docURL, message string) string {
	subject := fmt.Sprintf("%s for order %s", documentLabel(documentType), order.Number)
	body := fmt.Sprintf("Dear %s,\n\nPlease find your %s here: %s\n", order.CustomerName, documentLabel(documentType), docURL)
	if message != "" {
		body += "\n" + message + "\n"
	}
	params := url.Values{}
	params.Set("subject", subject)
	params.Set("body", body)
	return "mailto:" + recipient + "?" + params.Encode()
}

func documentLabel(documentType string) string {
	switch documentType {
	case model.DocInvoice:
		return "Invoice"
	case model.DocReceipt:
		return "Receipt"
	case model.DocMerged:
		return "Invoice & Receipt"
	case model.DocDeliverySlip:
		return "Delivery Slip"
	default:
		return "Document"
	}
}

// log writes the share trail entry; failures are logged and swallowed, never
// surfaced to the user.
func (s *shareService) log(ctx context.Context, userID string, order *model.Order, documentType, channel, recipient string) {
	if s.shareRepo == nil {
		return
	}
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}
	entry := &model.ShareLog{
		UserID:       uid,
		OrderID:      order.ID,
		OrderKind:    order.Kind,
		DocumentType: documentType,
		Channel:      channel,
		Recipient:    recipient,
	}
	if err := s.shareRepo.Log(ctx, entry); err != nil {
		log.Printf("share: log write failed: %v", err)
	}
}
