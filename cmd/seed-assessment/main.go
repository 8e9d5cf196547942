package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// Usage: seed-assessment -file quiz.json -author 1 -publish
func main() {
	var (
		file     string
		authorID int
		publish  bool
	)
	flag.StringVar(&file, "file", "", "Path to an assessment JSON file")
	flag.IntVar(&authorID, "author", 1, "Admin user ID recorded as the author")
	flag.BoolVar(&publish, "publish", false, "Publish the assessment after creating it")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	if file == "" {
		log.Fatal().Msg("-file is required")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read assessment file")
	}

	var req model.CreateAssessmentRequest
	if fields := validator.Decode(data, &req); fields != nil {
		for field, msg := range fields {
			fmt.Printf("  %s: %s\n", field, msg)
		}
		log.Fatal().Msg("Assessment file is invalid")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	assessmentService := service.NewAssessmentService(
		repository.NewAssessmentRepository(pool),
		repository.NewQuestionRepository(pool),
		rdb,
		log,
	)

	a, err := assessmentService.Create(ctx, authorID, &req)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create assessment")
	}
	fmt.Printf("Created assessment %s (%q, %d questions)\n", a.ID, a.Title, a.QuestionCount)

	if !publish {
		return
	}
	if err := assessmentService.Publish(ctx, a.ID, 0); err != nil {
		log.Fatal().Err(err).Msg("Failed to publish assessment")
	}
	fmt.Println("Published.")
}
