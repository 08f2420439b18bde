package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Seeds a development database with a service menu, a few dentists, and
// a batch of opted-in patients.
func main() {
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedServices(ctx, pool); err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedDentists(ctx, pool, 4); err != nil {
		log.Fatalf("seed dentists: %v", err)
	}
	if err := seedPatients(ctx, pool, 200); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) error {
	services := []struct {
		name       string
		duration   int
		priceCents int
	}{
		{"Checkup", 30, 8500},
		{"Cleaning", 45, 12000},
		{"Whitening", 60, 25000},
		{"Filling", 45, 18000},
		{"Extraction", 60, 22000},
		{"Root Canal", 90, 75000},
		{"Crown Fitting", 60, 95000},
	}

	log.Printf("seeding %d services", len(services))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, duration_minutes, price_cents, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, uuid.New(), s.name, s.duration, s.priceCents)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedDentists(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d dentists", count)

	specialties := []string{
		"General Dentistry",
		"Orthodontics",
		"Endodontics",
		"Periodontics",
		"Pediatric Dentistry",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO dentists (id, name, specialty, created_at)
			VALUES ($1, $2, $3, now())
		`, uuid.New(), name, spec)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO patients
				(id, full_name, email, phone, email_opt_in, sms_opt_in, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`,
			uuid.New(),
			gofakeit.Name(),
			gofakeit.Email(),
			gofakeit.Phone(),
			gofakeit.Number(0, 9) > 1, // most patients keep email on
			gofakeit.Number(0, 9) > 3,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
