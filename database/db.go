package database

import (
	"context"
	"log"
	"time"

	"carelink/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// MongoClient is the global MongoDB client instance.
var MongoClient *mongo.Client

// PostgresDB is the global GORM handle when STORE_DRIVER=postgres.
var PostgresDB *gorm.DB

// InitDB initializes the MongoDB connection.
func InitDB() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(config.AppConfig.DatabaseURL)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("failed to ping MongoDB: %v", err)
	}
	MongoClient = client
	log.Println("Connected to MongoDB successfully!")
}

// MongoDatabase returns the application database on the global client.
func MongoDatabase() *mongo.Database {
	if MongoClient == nil {
		InitDB()
	}
	return MongoClient.Database(config.AppConfig.DatabaseName)
}

// InitPostgres opens the GORM connection. Duplicate-key errors are translated
// to gorm.ErrDuplicatedKey so repositories can match them.
func InitPostgres() {
	db, err := gorm.Open(postgres.Open(config.AppConfig.PostgresDSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get Postgres pool: %v", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	PostgresDB = db
	log.Println("Connected to Postgres successfully!")
}

// Ping reports whether the configured store answers.
func Ping(ctx context.Context) error {
	switch {
	case MongoClient != nil:
		return MongoClient.Ping(ctx, nil)
	case PostgresDB != nil:
		sqlDB, err := PostgresDB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return nil
}

// Close releases whichever connection was opened.
func Close(ctx context.Context) {
	if MongoClient != nil {
		if err := MongoClient.Disconnect(ctx); err != nil {
			log.Printf("mongo disconnect: %v", err)
		}
	}
	if PostgresDB != nil {
		if sqlDB, err := PostgresDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
