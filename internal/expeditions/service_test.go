package expeditions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	groups map[uuid.UUID]*Group
	regs   map[uuid.UUID]*Registration
	// countDelay widens the check-then-insert window to expose missing locks.
	countDelay time.Duration
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{groups: map[uuid.UUID]*Group{}, regs: map[uuid.UUID]*Registration{}}
}

func (r *memoryRepo) withCounts(g Group) *Group {
	for _, reg := range r.regs {
		if reg.GroupID != g.ID {
			continue
		}
		if reg.IsWaitlist {
			g.WaitlistCount++
		} else {
			g.ConfirmedCount++
		}
	}
	return &g
}

func (r *memoryRepo) ListGroups(_ context.Context, agencyID uuid.UUID) ([]Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Group
	for _, g := range r.groups {
		if g.AgencyID == agencyID {
			out = append(out, *r.withCounts(*g))
		}
	}
	return out, nil
}

func (r *memoryRepo) GetGroup(_ context.Context, agencyID, id uuid.UUID) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok || g.AgencyID != agencyID {
		return nil, ErrGroupNotFound
	}
	return r.withCounts(*g), nil
}

func (r *memoryRepo) GetGroupByToken(_ context.Context, token string) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.PublicToken == token {
			return r.withCounts(*g), nil
		}
	}
	return nil, ErrGroupNotFound
}

func (r *memoryRepo) CreateGroup(_ context.Context, g Group) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g.ID = uuid.New()
	r.groups[g.ID] = &g
	cp := g
	return &cp, nil
}

func (r *memoryRepo) UpdateGroup(_ context.Context, g Group) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = &g
	return r.withCounts(g), nil
}

func (r *memoryRepo) DeleteGroup(_ context.Context, _, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
	return nil
}

func (r *memoryRepo) CountConfirmed(_ context.Context, groupID uuid.UUID) (int, error) {
	r.mu.Lock()
	n := 0
	for _, reg := range r.regs {
		if reg.GroupID == groupID && !reg.IsWaitlist {
			n++
		}
	}
	r.mu.Unlock()
	time.Sleep(r.countDelay)
	return n, nil
}

func (r *memoryRepo) ListRegistrations(_ context.Context, groupID uuid.UUID) ([]Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Registration
	for _, reg := range r.regs {
		if reg.GroupID == groupID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetRegistration(_ context.Context, _, id uuid.UUID) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return nil, ErrRegistrationNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r *memoryRepo) CreateRegistration(_ context.Context, reg Registration) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg.ID = uuid.New()
	r.regs[reg.ID] = &reg
	cp := reg
	return &cp, nil
}

func (r *memoryRepo) UpdateRegistration(_ context.Context, reg Registration) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[reg.ID] = &reg
	cp := reg
	return &cp, nil
}

func (r *memoryRepo) DeleteRegistration(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.regs, id)
	return nil
}

type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (k *memoryKeys) Claim(_ context.Context, scope, key string) error {
	key = scope + "|" + key
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	k.keys[key] = true
	return nil
}

func (k *memoryKeys) Release(_ context.Context, scope, key string) error {
	key = scope + "|" + key
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, key)
	return nil
}

type captureNotifier struct {
	mu      sync.Mutex
	notices []RegistrationNotice
}

func (n *captureNotifier) NotifyRegistration(_ context.Context, notice RegistrationNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func newRedisLocker(t *testing.T) *shared.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewLocker(redislock.New(client), 5*time.Second)
}

var agencyID = uuid.New()

func newGroup(t *testing.T, svc *Service, capacity int) *Group {
	t.Helper()
	g, err := svc.CreateGroup(context.Background(), agencyID, CreateGroupRequest{Name: "Atacama", Destination: "Chile", MaxParticipants: capacity})
	require.NoError(t, err)
	return g
}

func TestShouldWaitlist(t *testing.T) {
	assert.True(t, ShouldWaitlist(2, 2))
	assert.True(t, ShouldWaitlist(3, 2))
	assert.False(t, ShouldWaitlist(1, 2))
	assert.Equal(t, StatusJoinedList, DefaultStatus(true))
	assert.Equal(t, StatusConfirmed, DefaultStatus(false))
}

func TestRegisterWaitlistsAtCapacity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	g := newGroup(t, svc, 2)
	ctx := context.Background()

	for _, name := range []string{"Ana", "Bia"} {
		reg, err := svc.Register(ctx, agencyID, g.ID, RegisterRequest{Name: name})
		require.NoError(t, err)
		assert.False(t, reg.IsWaitlist)
		assert.Equal(t, StatusConfirmed, reg.Status)
	}
	third, err := svc.Register(ctx, agencyID, g.ID, RegisterRequest{Name: "Caio"})
	require.NoError(t, err)
	assert.True(t, third.IsWaitlist)
	assert.Equal(t, StatusJoinedList, third.Status)

	roster, err := svc.Roster(ctx, agencyID, g.ID)
	require.NoError(t, err)
	assert.Len(t, roster.Confirmed, 2)
	assert.Len(t, roster.Waitlist, 1)
}

func TestRegisterHonoursExplicitStatus(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	g := newGroup(t, svc, 5)
	reg, err := svc.Register(context.Background(), agencyID, g.ID, RegisterRequest{Name: "Duda", Status: string(StatusProspect)})
	require.NoError(t, err)
	assert.False(t, reg.IsWaitlist)
	assert.Equal(t, StatusProspect, reg.Status)
}

func TestConcurrentRegistrationsRespectCapacity(t *testing.T) {
	repo := newMemoryRepo()
	repo.countDelay = 5 * time.Millisecond
	svc := NewService(repo, newRedisLocker(t), nil, nil, nil)
	g := newGroup(t, svc, 3)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), agencyID, g.ID, RegisterRequest{Name: "traveller"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	confirmed, err := repo.CountConfirmed(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, confirmed)
	got, err := repo.GetGroup(context.Background(), agencyID, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.WaitlistCount)
}

func TestPromote(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newRedisLocker(t), nil, nil, nil)
	g := newGroup(t, svc, 1)
	ctx := context.Background()

	first, err := svc.Register(ctx, agencyID, g.ID, RegisterRequest{Name: "Ana"})
	require.NoError(t, err)
	waiting, err := svc.Register(ctx, agencyID, g.ID, RegisterRequest{Name: "Bia"})
	require.NoError(t, err)
	require.True(t, waiting.IsWaitlist)

	_, err = svc.Promote(ctx, agencyID, waiting.ID)
	require.ErrorIs(t, err, ErrGroupFull)
	assert.True(t, errors.Is(err, httpx.ErrConflict))

	_, err = svc.Promote(ctx, agencyID, first.ID)
	require.ErrorIs(t, err, ErrNotWaitlisted)

	require.NoError(t, svc.DeleteRegistration(ctx, agencyID, first.ID))
	promoted, err := svc.Promote(ctx, agencyID, waiting.ID)
	require.NoError(t, err)
	assert.False(t, promoted.IsWaitlist)
	assert.Equal(t, StatusJoinedList, promoted.Status, "promotion leaves status alone")
}

func TestStatusIndependentOfWaitlist(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	g := newGroup(t, svc, 1)
	ctx := context.Background()
	_, err := svc.Register(ctx, agencyID, g.ID, RegisterRequest{Name: "Ana"})
	require.NoError(t, err)
	waiting, err := svc.Register(ctx, agencyID, g.ID, RegisterRequest{Name: "Bia"})
	require.NoError(t, err)

	status := string(StatusConfirmed)
	updated, err := svc.UpdateRegistration(ctx, agencyID, waiting.ID, UpdateRegistrationRequest{Status: &status})
	require.NoError(t, err)
	assert.True(t, updated.IsWaitlist)
	assert.Equal(t, StatusConfirmed, updated.Status)
}

func TestRegisterPublicIdempotency(t *testing.T) {
	repo := newMemoryRepo()
	keys := &memoryKeys{keys: map[string]bool{}}
	notifier := &captureNotifier{}
	svc := NewService(repo, nil, keys, notifier, nil)
	g := newGroup(t, svc, 1)
	ctx := context.Background()

	reg, err := svc.RegisterPublic(ctx, g.PublicToken, "abc", RegisterRequest{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.False(t, reg.IsWaitlist)

	_, err = svc.RegisterPublic(ctx, g.PublicToken, "abc", RegisterRequest{Name: "Ana", Email: "ana@example.com"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	second, err := svc.RegisterPublic(ctx, g.PublicToken, "", RegisterRequest{Name: "Bia", Email: "bia@example.com", Status: "confirmado"})
	require.NoError(t, err)
	assert.True(t, second.IsWaitlist)
	assert.Equal(t, StatusJoinedList, second.Status, "public sign-ups cannot pick a status")

	require.Len(t, notifier.notices, 2)
	assert.True(t, notifier.notices[1].Waitlisted)
}

func TestRegisterPublicReleasesKeyOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	keys := &memoryKeys{keys: map[string]bool{}}
	svc := NewService(repo, nil, keys, nil, nil)
	g := newGroup(t, svc, 1)
	inactive := false
	_, err := svc.UpdateGroup(context.Background(), agencyID, g.ID, UpdateGroupRequest{Active: &inactive})
	require.NoError(t, err)

	_, err = svc.RegisterPublic(context.Background(), g.PublicToken, "k1", RegisterRequest{Name: "Ana"})
	require.ErrorIs(t, err, ErrGroupClosed)
	assert.Empty(t, keys.keys)
}

func TestPublicGroupUnknownToken(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	_, err := svc.PublicGroup(context.Background(), "nope")
	require.ErrorIs(t, err, ErrGroupNotFound)
	_, err = svc.PublicGroup(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrGroupNotFound)
}

func TestUpdateGroupRejectsInvertedDates(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	g := newGroup(t, svc, 4)
	start := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, err := svc.UpdateGroup(context.Background(), agencyID, g.ID, UpdateGroupRequest{StartDate: &start, EndDate: &end})
	require.ErrorIs(t, err, ErrInvalidDates)
}
