package bridge

import (
	"context"
	"time"

	"github.com/praxishq/dashboard-core/internal/notify"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

type statusClient interface {
	Status(ctx context.Context) (Status, error)
}

// Poller periodically checks bridge pairing status and publishes an
// alert whenever it changes, so the dashboard banner stays honest even
// if the realtime channel missed a qrStatus/ready event.
type Poller struct {
	client   statusClient
	alerts   *notify.Hub
	logger   *logging.Logger
	interval time.Duration

	last string
}

func NewPoller(client statusClient, alerts *notify.Hub, logger *logging.Logger) *Poller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{
		client:   client,
		alerts:   alerts,
		logger:   logger,
		interval: 30 * time.Second,
	}
}

func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if p.client == nil {
		return
	}
	status, err := p.client.Status(ctx)
	if err != nil {
		p.logger.Warn("bridge status poll failed", "error", err)
		return
	}
	if status.InstanceStatus == p.last {
		return
	}
	p.last = status.InstanceStatus
	p.logger.Info("bridge status changed", "status", status.InstanceStatus)
	switch {
	case status.Ready():
		p.alerts.Publish(notify.Alert{Kind: notify.KindBridgeReady})
	case status.InstanceStatus == StatusQR:
		p.alerts.Publish(notify.Alert{Kind: notify.KindBridgeQR, Detail: StatusQR})
	default:
		p.alerts.Publish(notify.Alert{Kind: notify.KindBridgeQR, Detail: status.InstanceStatus})
	}
}
