package notification

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/wneessen/go-mail"

	"ms-attendance/internal/config"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var voucherTemplate = template.Must(template.ParseFS(templateFS, "templates/vouchers.html"))

var (
	ErrNoRecipient = errors.New("holder has no email address")
	ErrNoVouchers  = errors.New("no vouchers to send")
)

// MailClient is the part of *mail.Client the sender uses.
type MailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// QRRenderer renders the QR image of a voucher id.
type QRRenderer interface {
	GeneratePNG(voucherID string) ([]byte, error)
}

// Sender mails vouchers and certificates over SMTP.
type Sender struct {
	Client MailClient
	From   string
	QR     QRRenderer
	Logger *logger.Logger
}

func NewSender(cfg config.EmailConfig, qr QRRenderer, log *logger.Logger) (*Sender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	if cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &Sender{Client: client, From: cfg.From, QR: qr, Logger: log}, nil
}

type voucherCode struct {
	Label     string
	ContentID string
}

type voucherMail struct {
	EventTitle  string
	Date        string
	Venue       string
	Description string
	HolderName  string
	Identity    string
	Codes       []voucherCode
}

// CategoryLabel is the human label of a voucher category.
func CategoryLabel(category string) string {
	if category == models.CategoryEntry {
		return "Entrada al Evento"
	}
	return category
}

// SendVouchers mails the holder one QR image per voucher, inline in an HTML
// body. A voucher whose QR cannot be rendered is left out.
func (s *Sender) SendVouchers(ctx context.Context, holder models.HolderProjection, event *models.Event, vouchers []models.Voucher) error {
	if !holder.Reachable() {
		return ErrNoRecipient
	}
	if len(vouchers) == 0 {
		return ErrNoVouchers
	}

	msg, err := s.newMessage(holder.Email, fmt.Sprintf("Entrada y QRs: %s - %s", event.Title, holder.DisplayName))
	if err != nil {
		return err
	}

	data := voucherMail{
		EventTitle:  event.Title,
		Venue:       event.Venue,
		Description: event.Description,
		HolderName:  holder.DisplayName,
		Identity:    holder.Identity,
	}
	if !event.StartsAt.IsZero() {
		data.Date = event.StartsAt.Format("02/01/2006 15:04")
	}

	for _, v := range vouchers {
		png, err := s.QR.GeneratePNG(v.ID)
		if err != nil {
			s.Logger.Warn("NOTIFICATION", fmt.Sprintf("Skipping QR of voucher %s: %v", v.ID, err))
			continue
		}
		cid := "qr_" + v.ID + ".png"
		if err := msg.EmbedReader(cid, bytes.NewReader(png)); err != nil {
			return fmt.Errorf("failed to embed QR of voucher %s: %w", v.ID, err)
		}
		data.Codes = append(data.Codes, voucherCode{Label: CategoryLabel(v.Category), ContentID: cid})
	}
	if len(data.Codes) == 0 {
		return ErrNoVouchers
	}

	if err := msg.SetBodyHTMLTemplate(voucherTemplate, data); err != nil {
		return fmt.Errorf("failed to render voucher mail: %w", err)
	}
	msg.AddAlternativeString(mail.TypeTextPlain,
		fmt.Sprintf("Hola %s, adjuntamos tus códigos QR para el evento %s.", holder.DisplayName, event.Title))

	return s.send(ctx, msg, holder.Email)
}

// SendCertificate mails an attendance certificate as a PDF attachment.
func (s *Sender) SendCertificate(ctx context.Context, holder models.HolderProjection, event *models.Event, pdf []byte) error {
	if !holder.Reachable() {
		return ErrNoRecipient
	}

	msg, err := s.newMessage(holder.Email, fmt.Sprintf("Certificado de Asistencia - %s", event.Title))
	if err != nil {
		return err
	}
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Hola %s,\n\nAdjunto encontrarás tu certificado de asistencia al evento '%s'.\n\n¡Gracias por participar!",
		holder.DisplayName, event.Title))

	filename := "Certificado_" + strings.ReplaceAll(holder.DisplayName, " ", "_") + ".pdf"
	if err := msg.AttachReader(filename, bytes.NewReader(pdf), mail.WithFileContentType(mail.ContentType("application/pdf"))); err != nil {
		return fmt.Errorf("failed to attach certificate: %w", err)
	}

	return s.send(ctx, msg, holder.Email)
}

func (s *Sender) newMessage(to, subject string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", s.From, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	msg.Subject(subject)
	return msg, nil
}

func (s *Sender) send(ctx context.Context, msg *mail.Msg, to string) error {
	if err := s.Client.DialAndSendWithContext(ctx, msg); err != nil {
		s.Logger.LogDispatch("FAILED", to, err.Error())
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	s.Logger.LogDispatch("SENT", to, "mail delivered to smtp server")
	return nil
}
