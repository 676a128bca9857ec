package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"infoplatform/app/database"
	"infoplatform/app/pipeline"
)

const summaryLength = 200

func NewHandler(sourceRepo database.SourceRepository, itemRepo database.ItemRepository,
	p PipelineRunner, sweeper SweepRunner, version string) *Handler {
	return &Handler{
		sourceRepo: sourceRepo,
		itemRepo:   itemRepo,
		pipeline:   p,
		sweeper:    sweeper,
		version:    version,
	}
}

func (h *Handler) ListArticles(c *gin.Context) {
	limit := parseIntParam(c, "limit", 20)
	if limit < 1 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
		return
	}

	offset := parseIntParam(c, "offset", 0)
	if offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be non-negative"})
		return
	}

	status := c.DefaultQuery("status", "all")
	switch status {
	case "all", "unread", "read", "starred":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of all, unread, read, starred"})
		return
	}

	items, err := h.itemRepo.ListItems(limit, offset, status)
	if err != nil {
		slog.Error("Failed to list articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list articles"})
		return
	}

	// source names are looked up once per distinct source id
	nameCache := make(map[string]*string)

	summaries := make([]ArticleSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, ArticleSummary{
			ID:         item.ID,
			Title:      item.Title,
			Summary:    truncate(item.Content, summaryLength),
			FetchedAt:  item.FetchedAt,
			SourceName: h.sourceName(item.SourceID, nameCache),
			IsRead:     item.IsRead,
			IsStarred:  item.IsStarred,
		})
	}

	c.JSON(http.StatusOK, summaries)
}

func (h *Handler) GetArticle(c *gin.Context) {
	id := c.Param("id")

	item, err := h.itemRepo.GetItem(id)
	if err != nil {
		slog.Error("Failed to get article", "item_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get article"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	c.JSON(http.StatusOK, ArticleDetail{
		ID:          item.ID,
		Title:       item.Title,
		Content:     item.Content,
		PublishedAt: item.PublishedAt,
		FetchedAt:   item.FetchedAt,
		SourceID:    item.SourceID,
		SourceName:  h.sourceName(item.SourceID, nil),
		URL:         item.URL,
		IsRead:      item.IsRead,
		IsStarred:   item.IsStarred,
	})
}

func (h *Handler) UpdateFlags(c *gin.Context) {
	id := c.Param("id")

	var flags FlagsUpdate
	if err := c.ShouldBindJSON(&flags); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if flags.IsRead == nil && flags.IsStarred == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found or not updated"})
		return
	}

	ok, err := h.itemRepo.UpdateFlags(id, flags.IsRead, flags.IsStarred)
	if err != nil {
		slog.Error("Failed to update article flags", "item_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update article flags"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found or not updated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if sourceCount, err := h.sourceRepo.GetSourceCount(); err == nil {
		health["sources"] = sourceCount
	}
	if itemCount, err := h.itemRepo.GetItemCount(); err == nil {
		health["items"] = itemCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListSources(c *gin.Context) {
	sources, err := h.sourceRepo.ListSources(false)
	if err != nil {
		slog.Error("Failed to list sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sources"})
		return
	}

	infos := make([]gin.H, 0, len(sources))
	for _, src := range sources {
		info := gin.H{
			"id":            src.ID,
			"name":          src.Name,
			"url":           src.URL,
			"type":          src.Type,
			"enabled":       src.Enabled,
			"last_fetch_at": src.LastFetchAt,
		}
		if src.FetchIntervalSeconds != nil {
			info["fetch_interval"] = (time.Duration(*src.FetchIntervalSeconds) * time.Second).String()
		}
		infos = append(infos, info)
	}

	c.JSON(http.StatusOK, gin.H{"sources": infos, "total": len(infos)})
}

// RefreshSource triggers a synchronous fetch run for one source so callers can
// observe fetch failures directly.
func (h *Handler) RefreshSource(c *gin.Context) {
	id := c.Param("id")

	results, err := h.pipeline.RunForSource(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrSourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return
		}
		slog.Error("Manual refresh failed", "source_id", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch source"})
		return
	}

	created := 0
	for _, r := range results {
		if r.Created {
			created++
		}
	}

	c.JSON(http.StatusOK, gin.H{"processed": len(results), "created": created})
}

// RunDue triggers a synchronous sweep of all currently due sources.
func (h *Handler) RunDue(c *gin.Context) {
	ran, err := h.sweeper.RunDueOnce(c.Request.Context(), time.Now().UTC())
	if err != nil {
		slog.Error("Due sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run due sources"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ran": ran})
}

func (h *Handler) sourceName(sourceID *string, cache map[string]*string) *string {
	if sourceID == nil {
		return nil
	}
	if cache != nil {
		if name, ok := cache[*sourceID]; ok {
			return name
		}
	}

	var name *string
	src, err := h.sourceRepo.GetSource(*sourceID)
	if err != nil {
		slog.Error("Failed to look up source name", "source_id", *sourceID, "error", err)
	} else if src != nil {
		name = &src.Name
	}

	if cache != nil {
		cache[*sourceID] = name
	}
	return name
}

func parseIntParam(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return value
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
