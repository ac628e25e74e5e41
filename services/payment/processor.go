package payment

import (
	"context"
	"strings"
	"time"

	"carelink/models"

	"github.com/google/uuid"
)

// SimulatedProcessor settles every attempt after a fixed latency. Fail, when
// set, decides whether a given attempt is declined.
type SimulatedProcessor struct {
	Latency time.Duration
	Fail    func(attempt *models.PaymentAttempt) error
}

func NewSimulatedProcessor(latency time.Duration) *SimulatedProcessor {
	return &SimulatedProcessor{Latency: latency}
}

func (p *SimulatedProcessor) Name() string { return "simulated" }

// Open issues a QR reference token.
func (p *SimulatedProcessor) Open(_ context.Context, _ *models.PaymentAttempt) (string, error) {
	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:12]
	return "QR-" + token, nil
}

func (p *SimulatedProcessor) Settle(ctx context.Context, attempt *models.PaymentAttempt) error {
	timer := time.NewTimer(p.Latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	if p.Fail != nil {
		return p.Fail(attempt)
	}
	return nil
}
