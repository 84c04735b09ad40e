package handler

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/gin-gonic/gin"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/d60-Lab/feedgate/internal/cache"
    "github.com/d60-Lab/feedgate/internal/model"
    "github.com/d60-Lab/feedgate/internal/service"
)

func init() {
    gin.SetMode(gin.TestMode)
}

type stubGraph struct {
    following []string
    err       error
}

func (s *stubGraph) GetFollowers(context.Context, string) ([]string, error) { return nil, nil }
func (s *stubGraph) GetFollowing(context.Context, string) ([]string, error) {
    return s.following, s.err
}

type stubContent struct {
    posts []model.FeedEntry
}

func (s *stubContent) GetPosts(context.Context, string) ([]model.FeedEntry, error) {
    return s.posts, nil
}

func setupRouter(t *testing.T, graph service.GraphClient, content service.ContentClient) (*gin.Engine, *cache.FeedCache) {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    feedCache := cache.NewFeedCache(rdb, 100)
    svc := service.NewFeedService(graph, content, feedCache, 20, 10, time.Hour, 15*time.Second)

    r := gin.New()
    h := NewHandler(svc)
    r.GET("/health", h.Health)
    r.GET("/:userId", h.GetFeed)
    return r, feedCache
}

func TestGetFeedFromCache(t *testing.T) {
    router, feedCache := setupRouter(t, &stubGraph{}, &stubContent{})
    entry := model.FeedEntry{PostID: "p1", AuthorID: "a", Content: "hi", CreatedAt: time.Unix(1700000000, 0).UTC()}
    require.NoError(t, feedCache.Push(context.Background(), "u1", entry))

    w := httptest.NewRecorder()
    router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/u1", nil))

    require.Equal(t, http.StatusOK, w.Code)
    var feed model.Feed
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feed))
    assert.Equal(t, model.SourceCache, feed.Source)
    require.Len(t, feed.Entries, 1)
    assert.Equal(t, "p1", feed.Entries[0].PostID)
}

func TestGetFeedRebuildOnMiss(t *testing.T) {
    graph := &stubGraph{following: []string{"a"}}
    content := &stubContent{posts: []model.FeedEntry{
        {PostID: "p1", AuthorID: "a", Content: "hi", CreatedAt: time.Unix(1700000000, 0).UTC()},
    }}
    router, _ := setupRouter(t, graph, content)

    w := httptest.NewRecorder()
    router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/u1", nil))

    require.Equal(t, http.StatusOK, w.Code)
    var feed model.Feed
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feed))
    assert.Equal(t, model.SourceRebuild, feed.Source)
    require.Len(t, feed.Entries, 1)
}

func TestGetFeedCollaboratorFailureIs500(t *testing.T) {
    router, _ := setupRouter(t, &stubGraph{err: errors.New("user-service down")}, &stubContent{})

    w := httptest.NewRecorder()
    router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/u1", nil))

    require.Equal(t, http.StatusInternalServerError, w.Code)
    var body map[string]string
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
    assert.NotEmpty(t, body["error"])
}

func TestHealth(t *testing.T) {
    router, _ := setupRouter(t, &stubGraph{}, &stubContent{})

    w := httptest.NewRecorder()
    router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

    assert.Equal(t, http.StatusOK, w.Code)
    assert.Contains(t, w.Body.String(), "healthy")
}
