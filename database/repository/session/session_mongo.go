package sessionRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carelink/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

// MongoSessionRepo implements SessionRepository using MongoDB.
type MongoSessionRepo struct {
	bookingColl *mongo.Collection
	changeColl  *mongo.Collection
}

// NewMongoSessionRepo constructs a new instance of MongoSessionRepo.
func NewMongoSessionRepo(db *mongo.Database) *MongoSessionRepo {
	return &MongoSessionRepo{
		bookingColl: db.Collection("bookings"),
		changeColl:  db.Collection("schedule_changes"),
	}
}

// InsertBooking inserts a new booking document.
func (repo *MongoSessionRepo) InsertBooking(ctx context.Context, booking *models.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := repo.bookingColl.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("error creating booking: %w", err)
	}
	return nil
}

// GetBooking retrieves a booking by its ID.
func (repo *MongoSessionRepo) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var booking models.Booking
	err := repo.bookingColl.FindOne(ctx, bson.M{"id": bookingID}).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching booking with id %s: %w", bookingID, err)
	}
	return &booking, nil
}

// UpdateBooking replaces the booking document if its version is still expectedVersion.
func (repo *MongoSessionRepo) UpdateBooking(ctx context.Context, booking *models.Booking, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	booking.Version = expectedVersion + 1
	res, err := repo.bookingColl.ReplaceOne(ctx, bson.M{"id": booking.ID, "version": expectedVersion}, booking)
	if err != nil {
		return fmt.Errorf("error updating booking %s: %w", booking.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListBookings returns bookings matching the filter ordered by scheduled start.
func (repo *MongoSessionRepo) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := bson.M{}
	if filter.RequesterID != "" {
		query["requester_id"] = filter.RequesterID
	}
	if filter.ProviderID != "" {
		query["provider_id"] = filter.ProviderID
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "scheduled_start", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := repo.bookingColl.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []models.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	return bookings, nil
}

// InsertScheduleChange inserts a request. The partial unique index on
// original_schedule_id turns a second pending request into ErrPendingChangeExists.
func (repo *MongoSessionRepo) InsertScheduleChange(ctx context.Context, req *models.ScheduleChangeRequest) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := repo.changeColl.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrPendingChangeExists
		}
		return fmt.Errorf("error creating schedule change: %w", err)
	}
	return nil
}

func (repo *MongoSessionRepo) GetScheduleChange(ctx context.Context, requestID string) (*models.ScheduleChangeRequest, error) {
	return repo.findScheduleChange(ctx, bson.M{"id": requestID})
}

func (repo *MongoSessionRepo) GetPendingScheduleChange(ctx context.Context, bookingID string) (*models.ScheduleChangeRequest, error) {
	return repo.findScheduleChange(ctx, bson.M{
		"original_schedule_id": bookingID,
		"status":               models.ScheduleChangePending,
	})
}

func (repo *MongoSessionRepo) findScheduleChange(ctx context.Context, filter bson.M) (*models.ScheduleChangeRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var req models.ScheduleChangeRequest
	err := repo.changeColl.FindOne(ctx, filter).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching schedule change: %w", err)
	}
	return &req, nil
}

// UpdateScheduleChange replaces the request document if its version is still expectedVersion.
func (repo *MongoSessionRepo) UpdateScheduleChange(ctx context.Context, req *models.ScheduleChangeRequest, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	req.Version = expectedVersion + 1
	res, err := repo.changeColl.ReplaceOne(ctx, bson.M{"id": req.ID, "version": expectedVersion}, req)
	if err != nil {
		return fmt.Errorf("error updating schedule change %s: %w", req.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListScheduleChanges returns requests matching the filter, newest first.
func (repo *MongoSessionRepo) ListScheduleChanges(ctx context.Context, filter models.ScheduleChangeFilter) ([]models.ScheduleChangeRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := bson.M{}
	if filter.BookingID != "" {
		query["original_schedule_id"] = filter.BookingID
	}
	if filter.InitiatorID != "" {
		query["initiator_id"] = filter.InitiatorID
	}
	if filter.CounterpartyID != "" {
		query["counterparty_id"] = filter.CounterpartyID
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := repo.changeColl.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing schedule changes: %w", err)
	}
	defer cursor.Close(ctx)

	reqs := []models.ScheduleChangeRequest{}
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, fmt.Errorf("error decoding schedule changes: %w", err)
	}
	return reqs, nil
}
