package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/openplans/visionstream/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func post(id, author, text, inReplyTo string, createdAt time.Time) *domain.Post {
	return &domain.Post{
		ExternalID: id,
		Author:     domain.Author{ExternalID: author, Handle: "u" + author, Name: "User " + author},
		Text:       text,
		InReplyTo:  inReplyTo,
		CreatedAt:  createdAt,
	}
}

func TestUpsertPostIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	created, err := repo.UpsertPost(ctx, post("1", "a", "first draft", "", now))
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.UpsertPost(ctx, post("1", "a", "second draft", "", now))
	require.NoError(t, err)
	require.False(t, created)

	stored, err := repo.GetPostByExternalID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "second draft", stored.Text)

	recent, err := repo.RecentPosts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1, "upserting the same external id twice yields one row")
}

func TestGetPostNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetPostByExternalID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeletePost(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.UpsertPost(ctx, post("1", "a", "text", "", time.Now().UTC()))
	require.NoError(t, err)

	deleted, err := repo.DeletePostByExternalID(ctx, "1")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.DeletePostByExternalID(ctx, "1")
	require.NoError(t, err)
	require.False(t, deleted, "deleting an absent post is a no-op")
}

func TestRecentPostsNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	_, err := repo.UpsertPost(ctx, post("old", "a", "old", "", base.Add(-2*time.Hour)))
	require.NoError(t, err)
	_, err = repo.UpsertPost(ctx, post("mid", "b", "mid", "", base.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = repo.UpsertPost(ctx, post("new", "c", "new", "", base))
	require.NoError(t, err)

	recent, err := repo.RecentPosts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "new", recent[0].ExternalID)
	require.Equal(t, "mid", recent[1].ExternalID)
}

func TestAssignmentTransitions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	root := post("root", "a", "a vision", "", now)
	_, err := repo.UpsertPost(ctx, root)
	require.NoError(t, err)

	ref, err := repo.Assignment(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, domain.Unassigned, ref.Kind)

	vision, err := repo.MarkAsVision(ctx, root)
	require.NoError(t, err)
	require.Equal(t, "root", vision.PostExternalID)
	require.Equal(t, "a vision", vision.Text)

	ref, err = repo.Assignment(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, domain.AssignedVision, ref.Kind)
	require.Equal(t, vision.ID, ref.VisionID)

	reply := post("r1", "b", "i agree", "root", now)
	_, err = repo.UpsertPost(ctx, reply)
	require.NoError(t, err)
	_, err = repo.MarkAsReply(ctx, reply, vision.ID)
	require.NoError(t, err)

	ref, err = repo.Assignment(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, domain.AssignedReply, ref.Kind)
	require.Equal(t, vision.ID, ref.VisionID)

	// unknown posts read as unassigned
	ref, err = repo.Assignment(ctx, "nope")
	require.NoError(t, err)
	require.Equal(t, domain.Unassigned, ref.Kind)
}

func TestMarkAsVisionIdempotentAndExclusive(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	root := post("root", "a", "a vision", "", now)
	_, err := repo.UpsertPost(ctx, root)
	require.NoError(t, err)

	first, err := repo.MarkAsVision(ctx, root)
	require.NoError(t, err)
	again, err := repo.MarkAsVision(ctx, root)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID, "at most one vision per post")

	// a vision's post cannot also become a reply
	_, err = repo.MarkAsReply(ctx, root, first.ID)
	require.Error(t, err)

	// and a reply's post cannot become a vision
	r1 := post("r1", "b", "reply", "root", now)
	_, err = repo.UpsertPost(ctx, r1)
	require.NoError(t, err)
	_, err = repo.MarkAsReply(ctx, r1, first.ID)
	require.NoError(t, err)
	_, err = repo.MarkAsVision(ctx, r1)
	require.Error(t, err)
}

func TestListCandidatesExcludesAssigned(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	root := post("root", "a", "a vision", "", now.Add(-time.Minute))
	_, err := repo.UpsertPost(ctx, root)
	require.NoError(t, err)
	_, err = repo.UpsertPost(ctx, post("cand", "b", "candidate", "", now))
	require.NoError(t, err)

	_, err = repo.MarkAsVision(ctx, root)
	require.NoError(t, err)

	candidates, err := repo.ListCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "cand", candidates[0].ExternalID)
}

func TestVisionTitleTruncation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	p := post("root", "a", string(long), "", time.Now().UTC())
	_, err := repo.UpsertPost(ctx, p)
	require.NoError(t, err)

	vision, err := repo.MarkAsVision(ctx, p)
	require.NoError(t, err)
	require.Len(t, vision.Title, 163, "160 characters plus ellipsis")
	require.Equal(t, string(long), vision.Text, "body keeps the full text")
}

func TestSharesAndSupporters(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	root := post("root", "a", "a vision", "", time.Now().UTC())
	_, err := repo.UpsertPost(ctx, root)
	require.NoError(t, err)
	vision, err := repo.MarkAsVision(ctx, root)
	require.NoError(t, err)

	share, err := repo.CreateShare(ctx, vision.ID, "user-1")
	require.NoError(t, err)
	require.NotZero(t, share.ID)
	require.Equal(t, vision.ID, share.VisionID)

	require.NoError(t, repo.AddSupporter(ctx, vision.ID, "user-1"))
	require.NoError(t, repo.AddSupporter(ctx, vision.ID, "user-1"), "supporting twice is idempotent")
}

func TestSetFeatured(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	root := post("root", "a", "a vision", "", time.Now().UTC())
	_, err := repo.UpsertPost(ctx, root)
	require.NoError(t, err)
	vision, err := repo.MarkAsVision(ctx, root)
	require.NoError(t, err)

	require.NoError(t, repo.SetFeatured(ctx, vision.ID, true))

	got, err := repo.GetVision(ctx, vision.ID)
	require.NoError(t, err)
	require.True(t, got.Featured)

	err = repo.SetFeatured(ctx, 9999, true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetCategory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	root := post("root", "a", "a vision", "", time.Now().UTC())
	_, err := repo.UpsertPost(ctx, root)
	require.NoError(t, err)
	vision, err := repo.MarkAsVision(ctx, root)
	require.NoError(t, err)

	require.NoError(t, repo.SetCategory(ctx, vision.ID, "education"))

	got, err := repo.GetVision(ctx, vision.ID)
	require.NoError(t, err)
	require.Equal(t, "education", got.Category)

	require.ErrorIs(t, repo.SetCategory(ctx, 9999, "education"), domain.ErrNotFound)
}

func TestUpsertUserPreservesVisibleOnHome(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	err := repo.UpsertUser(ctx, &domain.User{
		ExternalID:    "u1",
		Handle:        "jane",
		VisibleOnHome: true,
		RefreshedAt:   now,
	})
	require.NoError(t, err)

	// a profile refresh does not reset the operator-set flag
	err = repo.UpsertUser(ctx, &domain.User{
		ExternalID:  "u1",
		Handle:      "jane-renamed",
		RefreshedAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "jane-renamed", users[0].Handle)
	require.True(t, users[0].VisibleOnHome)
}

func TestListUsersStableOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.UpsertUser(ctx, &domain.User{ExternalID: id}))
	}

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Equal(t, "a", users[0].ExternalID)
	require.Equal(t, "b", users[1].ExternalID)
	require.Equal(t, "c", users[2].ExternalID)
}
