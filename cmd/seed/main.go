package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"proptyos-backend/internal/auth"
	"proptyos-backend/internal/config"
	"proptyos-backend/internal/db"
	"proptyos-backend/internal/directory"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Seeds a development database with a few directory records and the bootstrap
// admin user. Safe to run repeatedly; every write is an upsert keyed on _id.
func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		log.Error("index setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	now := time.Now().In(cfg.Timezone)

	projects := []directory.Record{
		{ID: "seed-project-victoria-gardens", Name: "Victoria Gardens", Location: "Lekki, Lagos", CreatedAt: now, UpdatedAt: now},
		{ID: "seed-project-emerald-heights", Name: "Emerald Heights", Location: "Gwarinpa, Abuja", CreatedAt: now, UpdatedAt: now},
	}
	clients := []directory.Record{
		{ID: "seed-client-adaeze-okafor", Name: "Adaeze Okafor", Email: "adaeze.okafor@example.com", Phone: "+2348012345678", CreatedAt: now, UpdatedAt: now},
		{ID: "seed-client-tunde-bakare", Name: "Tunde Bakare", Email: "tunde.bakare@example.com", Phone: "+2348098765432", CreatedAt: now, UpdatedAt: now},
	}
	marketers := []directory.Record{
		{ID: "seed-marketer-chidi-eze", Name: "Chidi Eze", Email: "chidi.eze@example.com", Phone: "+2347011122233", CreatedAt: now, UpdatedAt: now},
	}

	if err := upsertRecords(ctx, cols.Projects, projects); err != nil {
		log.Error("seed projects failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := upsertRecords(ctx, cols.Clients, clients); err != nil {
		log.Error("seed clients failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := upsertRecords(ctx, cols.Marketers, marketers); err != nil {
		log.Error("seed marketers failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.AdminPassword != "" {
		hash, err := auth.HashPassword(cfg.AdminPassword)
		if err != nil {
			log.Error("admin hash failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		user := auth.User{
			ID:           "seed-admin",
			Username:     cfg.AdminUser,
			PasswordHash: hash,
			CreatedAt:    now,
		}
		opts := options.Replace().SetUpsert(true)
		if _, err := cols.Users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, opts); err != nil {
			log.Error("seed admin failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		log.Info("admin user seeded", slog.String("username", user.Username))
	}

	log.Info("seed complete",
		slog.Int("projects", len(projects)),
		slog.Int("clients", len(clients)),
		slog.Int("marketers", len(marketers)),
	)
}

func upsertRecords(ctx context.Context, col *mongo.Collection, records []directory.Record) error {
	opts := options.Replace().SetUpsert(true)
	for _, rec := range records {
		if _, err := col.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, opts); err != nil {
			return err
		}
	}
	return nil
}
