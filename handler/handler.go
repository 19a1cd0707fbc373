package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"worker-hls/constant"
	"worker-hls/dto"
	"worker-hls/entities"
	"worker-hls/pkg/metrics"
	"worker-hls/service"
)

var ErrMalformedMessage = errors.New("malformed upload message")

type ServiceDependencies struct {
	Queue   service.JobQueue
	Targets []entities.Target
}

// UploadHandler turns an upload notification into a job. When the message names a
// configured table and row, the job is tagged with that owner and skips the lookup.
func UploadHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var upload dto.UploadMessage
	if err := json.Unmarshal(msg.Body, &upload); err != nil {
		metrics.BrokerMessagesTotal.WithLabelValues("malformed").Inc()
		return backoff.Permanent(errors.Join(ErrMalformedMessage, err))
	}
	if strings.TrimSpace(upload.FileName) == "" || !constant.IsVideoFile(upload.FileName) {
		metrics.BrokerMessagesTotal.WithLabelValues("malformed").Inc()
		return backoff.Permanent(fmt.Errorf("%w: unsupported file name %q", ErrMalformedMessage, upload.FileName))
	}

	job := entities.NewJob(upload.FileName, upload.Force, constant.TriggerBroker)
	if upload.Table != "" && upload.RowId != "" {
		owner, err := ownerFor(deps.Targets, upload)
		if err != nil {
			metrics.BrokerMessagesTotal.WithLabelValues("malformed").Inc()
			return backoff.Permanent(err)
		}
		job.Owner = owner
	}

	logger := zerolog.Ctx(ctx).With().Str("file", job.FileName).Bool("force", job.Force).Logger()
	if deps.Queue.Enqueue(job) {
		logger.Info().Str("job_id", job.ID.String()).Msg("upload notification queued")
	} else {
		logger.Debug().Msg("upload notification merged into existing job")
	}
	metrics.BrokerMessagesTotal.WithLabelValues("ok").Inc()
	return nil
}

func ownerFor(targets []entities.Target, upload dto.UploadMessage) (*entities.OwningRecord, error) {
	for _, target := range targets {
		if target.Table != upload.Table {
			continue
		}
		return &entities.OwningRecord{
			Table:         target.Table,
			IDColumn:      target.IDColumn,
			SourceColumn:  target.SourceColumn,
			PointerColumn: target.PointerColumn,
			RowID:         upload.RowId,
			SourceValue:   upload.FileName,
		}, nil
	}
	return nil, fmt.Errorf("%w: table %q is not a configured target", ErrMalformedMessage, upload.Table)
}
