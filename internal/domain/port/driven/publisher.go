package driven

import "github.com/kmathis/glucopanel/internal/domain/model"

// ReadingPublisher defines the driven port for republishing readings to
// external consumers (home-automation brokers). Publishing is best-effort;
// the poll loop logs failures and continues.
type ReadingPublisher interface {
	Publish(r model.Reading) error
	Close()
}
