package sessionRepo

import (
	"context"
	"fmt"

	"carelink/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ApplyScheduleChange answers the request and rewrites the booking in one
// multi-document transaction. Requires a replica set.
func (repo *MongoSessionRepo) ApplyScheduleChange(
	ctx context.Context,
	req *models.ScheduleChangeRequest,
	reqVersion int64,
	booking *models.Booking,
	bookingVersion int64,
) error {
	client := repo.bookingColl.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	req.Version = reqVersion + 1
	booking.Version = bookingVersion + 1

	txnFn := func(sc mongo.SessionContext) error {
		res, err := repo.changeColl.ReplaceOne(sc, bson.M{
			"id":      req.ID,
			"version": reqVersion,
			"status":  models.ScheduleChangePending,
		}, req)
		if err != nil {
			return fmt.Errorf("update schedule change failed: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrVersionConflict
		}

		res, err = repo.bookingColl.ReplaceOne(sc, bson.M{
			"id":      booking.ID,
			"version": bookingVersion,
		}, booking)
		if err != nil {
			return fmt.Errorf("update booking failed: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	if err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := txnFn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	}); err != nil {
		if err == ErrVersionConflict {
			return err
		}
		return fmt.Errorf("schedule change transaction failed: %w", err)
	}

	return nil
}
