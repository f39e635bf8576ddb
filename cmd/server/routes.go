package main

import (
	"errors"
	"net/http"
	"strconv"

	"yorumi-backend/lib/providers"
	"yorumi-backend/services/catalog"

	"github.com/gin-gonic/gin"
)

type pagination struct {
	CurrentPage     int  `json:"current_page"`
	LastVisiblePage int  `json:"last_visible_page"`
	HasNextPage     bool `json:"has_next_page"`
}

func envelope(data any) gin.H {
	return gin.H{"data": data}
}

func paginatedEnvelope(data any, currentPage int, page providers.ChildPage) gin.H {
	return gin.H{
		"data": data,
		"pagination": pagination{
			CurrentPage:     currentPage,
			LastVisiblePage: page.LastPage,
			HasNextPage:     page.HasNextPage,
		},
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, providers.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, catalog.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream failure"})
	}
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func newRouter(svc *catalog.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	anime := router.Group("/api/anime")
	{
		anime.GET("/spotlight", func(c *gin.Context) {
			items, err := svc.EnrichedSpotlight(c.Request.Context())
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, envelope(items))
		})

		anime.GET("/search", func(c *gin.Context) {
			query := c.Query("q")
			if query == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
				return
			}
			page := pageParam(c)
			records, pageInfo, err := svc.SearchAnime(c.Request.Context(), query, page)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, paginatedEnvelope(records, page, pageInfo))
		})

		anime.GET("/az-list", func(c *gin.Context) {
			letter := c.DefaultQuery("letter", "all")
			page := pageParam(c)
			records, pageInfo, err := svc.AnimeAZList(c.Request.Context(), letter, page)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, paginatedEnvelope(records, page, pageInfo))
		})

		anime.GET("/info/:id", func(c *gin.Context) {
			detail, err := svc.AnimeInfo(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, envelope(detail))
		})

		anime.GET("/episodes/:malId", func(c *gin.Context) {
			episodes, err := svc.AnimeEpisodes(c.Request.Context(), c.Param("malId"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, envelope(episodes))
		})
	}

	manga := router.Group("/api/manga/:provider")
	{
		manga.GET("/search", func(c *gin.Context) {
			query := c.Query("q")
			if query == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
				return
			}
			records, err := svc.SearchManga(c.Request.Context(), providers.ProviderID(c.Param("provider")), query)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, envelope(records))
		})

		manga.GET("/manga/:id", func(c *gin.Context) {
			detail, err := svc.MangaDetails(c.Request.Context(), providers.ProviderID(c.Param("provider")), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, envelope(detail))
		})

		manga.GET("/chapters/:id", func(c *gin.Context) {
			chapters, err := svc.MangaChapters(c.Request.Context(), providers.ProviderID(c.Param("provider")), c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, envelope(chapters))
		})

		manga.GET("/pages", func(c *gin.Context) {
			id := c.Query("id")
			chapterID := c.Query("chapter")
			if id == "" || chapterID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "id and chapter are required"})
				return
			}
			pages, err := svc.MangaPages(c.Request.Context(), providers.ProviderID(c.Param("provider")), id, chapterID)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, envelope(pages))
		})
	}

	user := router.Group("/api/user")
	{
		user.GET("/avatar", func(c *gin.Context) {
			username := c.Query("username")
			if username == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
				return
			}
			avatar, err := svc.UserAvatar(c.Request.Context(), username)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, envelope(gin.H{"username": username, "avatar": avatar}))
		})

		user.POST("/avatar", func(c *gin.Context) {
			var body struct {
				Username string `json:"username" binding:"required"`
				Avatar   string `json:"avatar" binding:"required"`
			}
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := svc.SetUserAvatar(c.Request.Context(), body.Username, body.Avatar); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, envelope(gin.H{"username": body.Username, "avatar": body.Avatar}))
		})
	}

	return router
}
