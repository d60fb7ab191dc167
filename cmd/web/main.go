package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"hamstudy/internal/app"
	"hamstudy/internal/blueprint"
	"hamstudy/internal/db"
)

func main() {
	cfg := app.LoadConfig()

	blueprints, err := blueprint.LoadFile(cfg.BlueprintsPath)
	if err != nil {
		log.Printf("blueprint error: %v", err)
		os.Exit(1)
	}

	dbConn, err := db.OpenPostgresWithConfig(context.Background(), cfg.DBDSN, db.PostgresConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	r := app.NewRouter(cfg, dbConn, blueprints)

	log.Printf("hamstudy web listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
