package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/identity"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func googleData(accessToken string) store.ServiceData {
	return store.ServiceData{
		AccessToken: accessToken,
		IDToken:     "it",
		ExpiresAt:   time.UnixMilli(1700000000000),
		Scope:       []string{"email"},
		Identity: identity.ServiceIdentity{
			"id":             "123",
			"email":          "ada@example.com",
			"verified_email": true,
			"name":           "Ada",
		},
	}
}

var adaEmail = store.Email{Address: "ada@example.com", Verified: true}

func TestReconcile_CreatesUser(t *testing.T) {
	st := store.NewMemory()
	r := New(st)
	r.newID = func() string { return "user-1" }

	id, err := r.Reconcile(t.Context(), "google", googleData("at"), adaEmail)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	usr, err := st.GetUser(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ada", usr.Profile.Name)
	assert.Equal(t, []store.Email{adaEmail}, usr.Emails)
	assert.Equal(t, "123", usr.Services["google"]["id"])
	assert.Equal(t, "at", usr.Services["google"]["accessToken"])
	assert.Equal(t, int64(1700000000000), usr.Services["google"]["expiresAt"])
}

func TestReconcile_Idempotent(t *testing.T) {
	st := store.NewMemory()
	r := New(st)

	first, err := r.Reconcile(t.Context(), "google", googleData("at"), adaEmail)
	require.NoError(t, err)
	second, err := r.Reconcile(t.Context(), "google", googleData("at"), adaEmail)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	usr, err := st.GetUser(t.Context(), first)
	require.NoError(t, err)
	assert.Len(t, usr.Emails, 1)
}

func TestReconcile_UpdatesInPlace(t *testing.T) {
	st := store.NewMemory()
	r := New(st)

	withRT := googleData("at-1")
	withRT.RefreshToken = "rt"
	id, err := r.Reconcile(t.Context(), "google", withRT, adaEmail)
	require.NoError(t, err)

	next := googleData("at-2")
	next.Identity["locale"] = "en"
	again, err := r.Reconcile(t.Context(), "google", next, store.Email{Address: "ada@work.example", Verified: false})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	usr, err := st.GetUser(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "at-2", usr.Services["google"]["accessToken"])
	assert.Equal(t, "rt", usr.Services["google"]["refreshToken"])
	assert.Equal(t, "en", usr.Services["google"]["locale"])
	assert.Equal(t, []store.Email{adaEmail, {Address: "ada@work.example"}}, usr.Emails)
}

func TestReconcile_SkipsEmptyEmail(t *testing.T) {
	st := store.NewMemory()
	r := New(st)

	data := googleData("at")
	delete(data.Identity, "email")
	id, err := r.Reconcile(t.Context(), "facebook", data, store.Email{Verified: true})
	require.NoError(t, err)

	_, err = r.Reconcile(t.Context(), "facebook", data, store.Email{Verified: true})
	require.NoError(t, err)

	usr, err := st.GetUser(t.Context(), id)
	require.NoError(t, err)
	assert.Empty(t, usr.Emails)
}

func TestReconcile_ProvidersAreSeparate(t *testing.T) {
	r := New(store.NewMemory())

	g, err := r.Reconcile(t.Context(), "google", googleData("at"), adaEmail)
	require.NoError(t, err)
	f, err := r.Reconcile(t.Context(), "facebook", googleData("at"), adaEmail)
	require.NoError(t, err)

	assert.NotEqual(t, g, f)
}

func TestReconcile_NoServiceID(t *testing.T) {
	st := &mockStore{Store: store.NewMemory()}
	r := New(st)

	_, err := r.Reconcile(t.Context(), "google", store.ServiceData{Identity: identity.ServiceIdentity{}}, adaEmail)
	require.ErrorIs(t, err, ErrNoServiceID)
	assert.Zero(t, st.inserts)
}

// mockStore counts inserts and can hide existing links from the first
// lookups, like a read that ran before a concurrent login committed.
type mockStore struct {
	store.Store
	inserts    int
	staleReads int
}

type mockTx struct {
	store.Store
	parent *mockStore
}

func (m *mockStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return m.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(&mockTx{Store: tx, parent: m})
	})
}

func (m *mockTx) FindUserByService(ctx context.Context, r store.FindUserByServiceRequest) (store.User, error) {
	if m.parent.staleReads > 0 {
		m.parent.staleReads--
		return store.User{}, store.ErrNotFound
	}
	return m.Store.FindUserByService(ctx, r)
}

func (m *mockTx) InsertUser(ctx context.Context, r store.InsertUserRequest) (string, error) {
	m.parent.inserts++
	return m.Store.InsertUser(ctx, r)
}

func TestReconcile_RetriesAfterLostRace(t *testing.T) {
	mem := store.NewMemory()
	winner, err := mem.InsertUser(t.Context(), store.InsertUserRequest{
		ID:        "winner",
		Provider:  "google",
		ServiceID: "123",
		Fields:    map[string]any{"id": "123", "refreshToken": "rt"},
	})
	require.NoError(t, err)

	st := &mockStore{Store: mem, staleReads: 1}
	r := New(st)

	id, err := r.Reconcile(t.Context(), "google", googleData("at"), adaEmail)
	require.NoError(t, err)
	assert.Equal(t, winner, id)
	assert.Equal(t, 1, st.inserts)

	usr, err := mem.GetUser(t.Context(), winner)
	require.NoError(t, err)
	assert.Equal(t, "at", usr.Services["google"]["accessToken"])
	assert.Equal(t, "rt", usr.Services["google"]["refreshToken"])
	assert.Equal(t, []store.Email{adaEmail}, usr.Emails)
}

func TestReconcile_RetriesOnlyOnce(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.InsertUser(t.Context(), store.InsertUserRequest{
		ID: "winner", Provider: "google", ServiceID: "123", Fields: map[string]any{"id": "123"},
	})
	require.NoError(t, err)

	st := &mockStore{Store: mem, staleReads: 2}
	_, err = New(st).Reconcile(t.Context(), "google", googleData("at"), adaEmail)
	require.ErrorIs(t, err, store.ErrExists)
	assert.Equal(t, 2, st.inserts)
}

type mockLocker struct {
	mu       sync.Mutex
	locked   map[string]bool
	lockErr  error
	unlocked []string
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lockErr != nil {
		return nil, m.lockErr
	}
	if m.locked[key] {
		return nil, ErrBusy
	}
	if m.locked == nil {
		m.locked = make(map[string]bool)
	}
	m.locked[key] = true

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locked, key)
		m.unlocked = append(m.unlocked, key)
	}, nil
}

func TestReconcile_Locks(t *testing.T) {
	l := &mockLocker{}
	r := New(store.NewMemory(), WithLocker(l))

	_, err := r.Reconcile(t.Context(), "google", googleData("at"), adaEmail)
	require.NoError(t, err)
	assert.Equal(t, []string{"google:123"}, l.unlocked)
}

func TestReconcile_Busy(t *testing.T) {
	l := &mockLocker{locked: map[string]bool{"google:123": true}}
	st := &mockStore{Store: store.NewMemory()}
	r := New(st, WithLocker(l))

	_, err := r.Reconcile(t.Context(), "google", googleData("at"), adaEmail)
	require.ErrorIs(t, err, ErrBusy)
	assert.Zero(t, st.inserts)
}

func TestReconcile_LockError(t *testing.T) {
	l := &mockLocker{lockErr: errors.New("redis down")}
	r := New(store.NewMemory(), WithLocker(l))

	_, err := r.Reconcile(t.Context(), "google", googleData("at"), adaEmail)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy)
}

func TestNew_PanicsWithoutStore(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}
