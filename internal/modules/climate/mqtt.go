package climate

import (
	"errors"
	"log/slog"

	"climap-server/internal/modules/climate/dataset"
	"climap-server/internal/mqtt"
)

type reloader interface {
	Reload(key string) error
}

// registerMQTTHandler reloads datasets on request. Unknown datasets are dropped with a warning.
func registerMQTTHandler(subscriber mqtt.MQTTSubscriber, svc reloader, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(cmd mqtt.ReloadCommand) error {
		logger.Info("reload requested", "dataset", cmd.Dataset, "requested_at", cmd.RequestedAt)

		err := svc.Reload(cmd.Dataset)
		if errors.Is(err, dataset.ErrUnknownDataset) {
			logger.Warn("reload for unknown dataset dropped", "dataset", cmd.Dataset)
			return nil
		}
		if err != nil {
			return err
		}

		logger.Info("datasets reloaded", "dataset", cmd.Dataset)
		return nil
	})
}
