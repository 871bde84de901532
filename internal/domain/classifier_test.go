package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPost(id, author, text, inReplyTo string) *Post {
	return &Post{
		ExternalID: id,
		Author:     Author{ExternalID: author, Handle: "u" + author, Name: "User " + author},
		Text:       text,
		InReplyTo:  inReplyTo,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestClassifyKeywordMatch(t *testing.T) {
	store := newMemStore()
	classifier, err := NewClassifier([]string{"parks"}, store)
	require.NoError(t, err)

	action, err := classifier.Classify(context.Background(), testPost("1", "a", "support parks", ""))
	require.NoError(t, err)
	require.Equal(t, KeepCandidate, action)
}

func TestClassifyKeywordCaseInsensitive(t *testing.T) {
	store := newMemStore()
	classifier, err := NewClassifier([]string{"parks"}, store)
	require.NoError(t, err)

	action, err := classifier.Classify(context.Background(), testPost("1", "a", "MORE PARKS NOW", ""))
	require.NoError(t, err)
	require.Equal(t, KeepCandidate, action)
}

func TestClassifyNoMatchDiscards(t *testing.T) {
	store := newMemStore()
	classifier, err := NewClassifier([]string{"parks"}, store)
	require.NoError(t, err)

	action, err := classifier.Classify(context.Background(), testPost("1", "a", "nothing relevant here", ""))
	require.NoError(t, err)
	require.Equal(t, Discard, action)
}

func TestClassifyEmptyKeywordsNeverMatch(t *testing.T) {
	store := newMemStore()
	classifier, err := NewClassifier(nil, store)
	require.NoError(t, err)

	action, err := classifier.Classify(context.Background(), testPost("1", "a", "support parks", ""))
	require.NoError(t, err)
	require.Equal(t, Discard, action)
}

func TestClassifyReplyToKnownPostAttaches(t *testing.T) {
	store := newMemStore()
	_, err := store.UpsertPost(context.Background(), testPost("parent", "a", "original", ""))
	require.NoError(t, err)

	classifier, err := NewClassifier([]string{"parks"}, store)
	require.NoError(t, err)

	// No keyword in the text: thread membership still wins.
	action, err := classifier.Classify(context.Background(), testPost("child", "b", "totally off topic", "parent"))
	require.NoError(t, err)
	require.Equal(t, AttachAsReply, action)
}

func TestClassifyDanglingReplyFallsThroughToKeywords(t *testing.T) {
	store := newMemStore()
	classifier, err := NewClassifier([]string{"parks"}, store)
	require.NoError(t, err)

	// Parent was never ingested: evaluated purely on relevance.
	action, err := classifier.Classify(context.Background(), testPost("child", "b", "i love parks", "missing"))
	require.NoError(t, err)
	require.Equal(t, KeepCandidate, action)

	action, err = classifier.Classify(context.Background(), testPost("child2", "b", "off topic", "missing"))
	require.NoError(t, err)
	require.Equal(t, Discard, action)
}

func TestClassifyKeywordsAreEscaped(t *testing.T) {
	store := newMemStore()
	classifier, err := NewClassifier([]string{"c++"}, store)
	require.NoError(t, err)

	action, err := classifier.Classify(context.Background(), testPost("1", "a", "learning c++ today", ""))
	require.NoError(t, err)
	require.Equal(t, KeepCandidate, action)
}
