package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"productimages/internal/catalog"
	"productimages/internal/models"
)

type productView struct {
	models.CatalogItem
	ImageCount   int  `json:"imageCount"`
	HasLiveImage bool `json:"hasLiveImage"`
}

func (s *Server) handleProducts(c *gin.Context) {
	const op = "server.handleProducts"

	items, err := s.deps.Catalog.ListAll(c.Request.Context())
	if err != nil {
		s.fail(c, op, err)
		return
	}
	counts := s.deps.Store.CountByPart()

	matched := catalog.Search(items, c.Query("q"))
	out := make([]productView, 0, len(matched))
	for _, it := range matched {
		out = append(out, productView{
			CatalogItem:  it,
			ImageCount:   counts[it.Identifier],
			HasLiveImage: s.deps.Store.HasLiveImage(it.Identifier),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "total": len(out)})
}
