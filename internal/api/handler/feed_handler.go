package handler

import (
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/d60-Lab/feedgate/internal/service"
    "github.com/d60-Lab/feedgate/pkg/response"
)

type Handler struct {
    feedService *service.FeedService
}

func NewHandler(feedService *service.FeedService) *Handler {
    return &Handler{feedService: feedService}
}

// GetFeed 读取用户 feed
// @Summary 用户时间线
// @Tags feed
// @Param userId path string true "用户ID"
// @Success 200 {object} model.Feed
// @Failure 500 {object} map[string]string
// @Router /{userId} [get]
func (h *Handler) GetFeed(c *gin.Context) {
    userID := c.Param("userId")
    if userID == "" {
        response.Error(c, http.StatusBadRequest, "userId is required")
        return
    }
    feed, err := h.feedService.GetFeed(c.Request.Context(), userID)
    if err != nil {
        response.Error(c, http.StatusInternalServerError, err.Error())
        return
    }
    c.JSON(http.StatusOK, feed)
}

// Health 健康检查
// @Summary 健康检查
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
    response.Healthy(c)
}
