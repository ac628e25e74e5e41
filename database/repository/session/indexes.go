package sessionRepo

import (
	"context"
	"fmt"

	"carelink/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the lookup indexes and the one-pending-change-per-booking index.
func (repo *MongoSessionRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*opTimeout)
	defer cancel()

	bookingIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("booking_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "requester_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("booking_requester_status"),
		},
		{
			Keys:    bson.D{{Key: "provider_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("booking_provider_status"),
		},
	}
	if _, err := repo.bookingColl.Indexes().CreateMany(ctx, bookingIndexes); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}

	changeIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("schedule_change_id_unique"),
		},
		{
			Keys: bson.D{{Key: "original_schedule_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("schedule_change_one_pending").
				SetPartialFilterExpression(bson.M{"status": models.ScheduleChangePending}),
		},
		{
			Keys:    bson.D{{Key: "counterparty_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("schedule_change_counterparty_status"),
		},
	}
	if _, err := repo.changeColl.Indexes().CreateMany(ctx, changeIndexes); err != nil {
		return fmt.Errorf("failed to create schedule change indexes: %w", err)
	}
	return nil
}
