package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/voyager-crm/voyager/internal/expeditions"
	"github.com/voyager-crm/voyager/internal/settlement"
)

// EmailEnqueuer queues an email for the worker.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, payload SendEmailPayload) error
}

// Notifier turns domain events into queued emails.
type Notifier struct {
	queue EmailEnqueuer
}

// NewNotifier returns a Notifier backed by queue.
func NewNotifier(queue EmailEnqueuer) *Notifier {
	return &Notifier{queue: queue}
}

var (
	_ settlement.Notifier  = (*Notifier)(nil)
	_ expeditions.Notifier = (*Notifier)(nil)
)

// NotifyCommission tells a collaborator about a commission from a closed proposal.
func (n *Notifier) NotifyCommission(ctx context.Context, notice settlement.CommissionNotice) error {
	if notice.CollaboratorEmail == "" {
		return nil
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Olá %s,\n\n", notice.CollaboratorName)
	fmt.Fprintf(&body, "A proposta #%d - %s foi fechada.\n", notice.ProposalNumber, notice.ProposalTitle)
	fmt.Fprintf(&body, "Sua comissão registrada: %s.\n", notice.Amount)
	return n.queue.EnqueueEmail(ctx, SendEmailPayload{
		To:      notice.CollaboratorEmail,
		Subject: fmt.Sprintf("Nova comissão - Proposta #%d", notice.ProposalNumber),
		Body:    body.String(),
	})
}

// NotifyRegistration confirms an expedition sign-up, or its place on the waitlist.
func (n *Notifier) NotifyRegistration(ctx context.Context, notice expeditions.RegistrationNotice) error {
	if notice.Email == "" {
		return nil
	}
	subject := "Inscrição confirmada - " + notice.GroupName
	status := "Sua inscrição foi recebida."
	if notice.Waitlisted {
		subject = "Lista de espera - " + notice.GroupName
		status = "O grupo está completo e você entrou na lista de espera. Avisaremos se uma vaga abrir."
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Olá %s,\n\n", notice.Name)
	fmt.Fprintf(&body, "Expedição: %s (%s)\n", notice.GroupName, notice.Destination)
	body.WriteString(status + "\n")
	return n.queue.EnqueueEmail(ctx, SendEmailPayload{To: notice.Email, Subject: subject, Body: body.String()})
}
