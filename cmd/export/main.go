package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"steam-market-scraper/internal/config"
	"steam-market-scraper/internal/services"
)

func main() {
	output := flag.String("output", "dataset.xlsx", "output workbook path")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	if err := services.ExportWorkbook(cfg.DataDir, *output); err != nil {
		log.Fatalf("[Export] %v", err)
	}
	log.Printf("[Export] wrote %s", *output)
}
