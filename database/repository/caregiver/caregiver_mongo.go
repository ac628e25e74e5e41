package caregiverRepo

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

// MongoCaregiverRepo implements CaregiverRepository using MongoDB.
type MongoCaregiverRepo struct {
	coll *mongo.Collection
}

func NewMongoCaregiverRepo(db *mongo.Database) *MongoCaregiverRepo {
	return &MongoCaregiverRepo{coll: db.Collection("caregivers")}
}

func (repo *MongoCaregiverRepo) GetByID(ctx context.Context, id string) (*models.Caregiver, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var caregiver models.Caregiver
	err := repo.coll.FindOne(ctx, bson.M{"id": id}).Decode(&caregiver)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching caregiver with id %s: %w", id, err)
	}
	return &caregiver, nil
}

func (repo *MongoCaregiverRepo) Upsert(ctx context.Context, caregiver *models.Caregiver) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := repo.coll.ReplaceOne(ctx, bson.M{"id": caregiver.ID}, caregiver, opts); err != nil {
		return fmt.Errorf("error saving caregiver %s: %w", caregiver.ID, err)
	}
	return nil
}

func (repo *MongoCaregiverRepo) List(ctx context.Context) ([]models.Caregiver, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := repo.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing caregivers: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Caregiver{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding caregivers: %w", err)
	}
	return out, nil
}
