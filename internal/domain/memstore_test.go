package domain

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory ConversationStore double keyed by external id.
type memStore struct {
	mu           sync.Mutex
	posts        map[string]*Post
	visions      map[string]*Vision // by post external id
	replies      map[string]*Reply  // by post external id
	nextVisionID int64
	nextReplyID  int64
}

func newMemStore() *memStore {
	return &memStore{
		posts:   make(map[string]*Post),
		visions: make(map[string]*Vision),
		replies: make(map[string]*Reply),
	}
}

func (m *memStore) UpsertPost(_ context.Context, post *Post) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.posts[post.ExternalID]
	clone := *post
	m.posts[post.ExternalID] = &clone
	return !exists, nil
}

func (m *memStore) GetPostByExternalID(_ context.Context, externalID string) (*Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *post
	return &clone, nil
}

func (m *memStore) DeletePostByExternalID(_ context.Context, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.posts[externalID]
	delete(m.posts, externalID)
	return ok, nil
}

func (m *memStore) RecentPosts(_ context.Context, limit int) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	posts := make([]Post, 0, len(m.posts))
	for _, p := range m.posts {
		posts = append(posts, *p)
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ExternalID > posts[j].ExternalID
	})

	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (m *memStore) ListCandidates(ctx context.Context, limit int) ([]Post, error) {
	recent, err := m.RecentPosts(ctx, limit)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []Post
	for _, p := range recent {
		if _, ok := m.visions[p.ExternalID]; ok {
			continue
		}
		if _, ok := m.replies[p.ExternalID]; ok {
			continue
		}
		candidates = append(candidates, p)
	}
	return candidates, nil
}

func (m *memStore) Assignment(_ context.Context, externalID string) (ThreadRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.visions[externalID]; ok {
		return ThreadRef{Kind: AssignedVision, VisionID: v.ID}, nil
	}
	if r, ok := m.replies[externalID]; ok {
		return ThreadRef{Kind: AssignedReply, VisionID: r.VisionID}, nil
	}
	return ThreadRef{Kind: Unassigned}, nil
}

func (m *memStore) MarkAsVision(_ context.Context, post *Post) (*Vision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.visions[post.ExternalID]; ok {
		return v, nil
	}

	m.nextVisionID++
	v := &Vision{
		ID:               m.nextVisionID,
		PostExternalID:   post.ExternalID,
		AuthorExternalID: post.Author.ExternalID,
		Text:             post.Text,
		CreatedAt:        time.Now().UTC(),
	}
	m.visions[post.ExternalID] = v
	return v, nil
}

func (m *memStore) MarkAsReply(_ context.Context, post *Post, visionID int64) (*Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.replies[post.ExternalID]; ok {
		return r, nil
	}

	m.nextReplyID++
	r := &Reply{
		ID:               m.nextReplyID,
		PostExternalID:   post.ExternalID,
		VisionID:         visionID,
		AuthorExternalID: post.Author.ExternalID,
		Text:             post.Text,
		CreatedAt:        time.Now().UTC(),
	}
	m.replies[post.ExternalID] = r
	return r, nil
}
