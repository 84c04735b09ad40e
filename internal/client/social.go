package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/d60-Lab/feedgate/internal/model"
)

// ErrUpstreamUnavailable marks network failures and 5xx answers from a
// collaborator service.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// SocialGraph talks to the user service for follower/following edges.
type SocialGraph struct {
	baseURL string
	http    *http.Client
}

// Content talks to the post service for a user's recent posts.
type Content struct {
	baseURL string
	http    *http.Client
}

func NewSocialGraph(baseURL string, timeout time.Duration) *SocialGraph {
	return &SocialGraph{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func NewContent(baseURL string, timeout time.Duration) *Content {
	return &Content{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// GetFollowers resolves who follows userID, in the order the user
// service stores them.
func (s *SocialGraph) GetFollowers(ctx context.Context, userID string) ([]string, error) {
	var profile struct {
		Followers []string `json:"followers"`
	}
	if err := getJSON(ctx, s.http, fmt.Sprintf("%s/profile/%s", s.baseURL, userID), &profile); err != nil {
		return nil, err
	}
	return profile.Followers, nil
}

// GetFollowing resolves who userID follows.
func (s *SocialGraph) GetFollowing(ctx context.Context, userID string) ([]string, error) {
	var following []string
	if err := getJSON(ctx, s.http, fmt.Sprintf("%s/following/%s", s.baseURL, userID), &following); err != nil {
		return nil, err
	}
	return following, nil
}

// GetPosts returns userID's recent posts, newest first per the post
// service's contract.
func (c *Content) GetPosts(ctx context.Context, userID string) ([]model.FeedEntry, error) {
	var posts []model.FeedEntry
	if err := getJSON(ctx, c.http, fmt.Sprintf("%s/user/%s", c.baseURL, userID), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func getJSON(ctx context.Context, hc *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s returned %d", ErrUpstreamUnavailable, url, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return nil
}
