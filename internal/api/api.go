package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"steam-market-scraper/internal/services"
)

// Handler serves the persisted dataset tables read-only, for downstream
// consumers that do not read the CSV files directly.
type Handler struct {
	dataDir string
}

func SetupRoutes(r *gin.Engine, dataDir string) *Handler {
	h := &Handler{dataDir: dataDir}

	r.GET("/api/health", h.Health)
	r.GET("/api/items", h.Items)
	r.GET("/api/daily", h.Daily)
	r.GET("/api/orderbook", h.OrderBook)

	return h
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Items(c *gin.Context) {
	h.serveTable(c, services.ItemsFile, "")
}

// Daily serves the daily table, optionally filtered to one item via ?name=.
func (h *Handler) Daily(c *gin.Context) {
	h.serveTable(c, services.DailyFile, c.Query("name"))
}

func (h *Handler) OrderBook(c *gin.Context) {
	h.serveTable(c, services.OrderBookFile, "")
}

func (h *Handler) serveTable(c *gin.Context, file, nameFilter string) {
	path := filepath.Join(h.dataDir, file)
	header, rows, err := services.LoadTable(path)
	if os.IsNotExist(err) {
		c.JSON(http.StatusOK, gin.H{"rows": []gin.H{}, "count": 0})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	nameIdx := -1
	if nameFilter != "" {
		for i, col := range header {
			if col == "Name" {
				nameIdx = i
				break
			}
		}
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		if nameIdx >= 0 && (len(row) <= nameIdx || row[nameIdx] != nameFilter) {
			continue
		}
		entry := gin.H{}
		for i, col := range header {
			if i < len(row) {
				entry[col] = row[i]
			}
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{"rows": out, "count": len(out)})
}
