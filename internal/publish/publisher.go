package publish

import (
	"context"

	"github.com/google/uuid"

	"github.com/volumewatch/volume-data/internal/model"
)

// PublishResult reports how many rows the store accepted and how many it
// rejected after subset retries.
type PublishResult struct {
	Written int
	Failed  int
}

// Publisher persists the snapshot set accumulated for one batch.
type Publisher interface {
	Publish(ctx context.Context, batchID uuid.UUID, snapshots []model.VolumeSnapshot) (PublishResult, error)
}
