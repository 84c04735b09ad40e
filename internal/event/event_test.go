package event

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestDecodePostCreated(t *testing.T) {
    payload := []byte(`{"postId":"p1","userId":"u1","content":"hi","createdAt":"2024-01-02T03:04:05Z"}`)

    decoded, err := Decode(TopicPostCreated, payload)
    require.NoError(t, err)
    ev, ok := decoded.(*PostCreated)
    require.True(t, ok)
    assert.Equal(t, "p1", ev.PostID)
    assert.Equal(t, "u1", ev.UserID)
    assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ev.CreatedAt)
}

func TestDecodeUserFollowed(t *testing.T) {
    payload := []byte(`{"userId":"u1","targetUserId":"u2"}`)

    decoded, err := Decode(TopicUserFollowed, payload)
    require.NoError(t, err)
    ev, ok := decoded.(*UserFollowed)
    require.True(t, ok)
    assert.Equal(t, "u1", ev.UserID)
    assert.Equal(t, "u2", ev.TargetUserID)
}

func TestDecodeUnknownTopic(t *testing.T) {
    _, err := Decode("post_liked", []byte(`{}`))
    assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestDecodeMalformedPayload(t *testing.T) {
    _, err := Decode(TopicPostCreated, []byte(`not json`))
    assert.Error(t, err)
}

func TestDecodeMissingRequiredFields(t *testing.T) {
    _, err := Decode(TopicPostCreated, []byte(`{"content":"hi"}`))
    assert.Error(t, err)

    _, err = Decode(TopicUserFollowed, []byte(`{"targetUserId":"u2"}`))
    assert.Error(t, err)
}
