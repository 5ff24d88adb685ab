package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"steam-market-scraper/internal/api"
	"steam-market-scraper/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	r := gin.Default()
	api.SetupRoutes(r, cfg.DataDir)

	log.Printf("[Server] serving dataset from %s on :%s", cfg.DataDir, cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("[Server] %v", err)
	}
}
