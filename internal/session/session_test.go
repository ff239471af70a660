package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"contxtra_bot/internal/backend"
	"contxtra_bot/internal/model"
	"contxtra_bot/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewStore(s)
}

func TestSaveLoad(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	got, err := st.Load(ctx, 42)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if got.Authenticated() {
		t.Fatalf("expected anonymous session, got %+v", got)
	}

	want := model.Session{UserID: "u1", Email: "u@example.com", AccessToken: "jwt"}
	if err := st.Save(ctx, 42, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = st.Load(ctx, 42)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("session (-want +got):\n%s", diff)
	}

	if err := st.Save(ctx, 42, model.Session{}); err != nil {
		t.Fatalf("save anonymous: %v", err)
	}
	got, _ = st.Load(ctx, 42)
	if got.Authenticated() {
		t.Errorf("session not dropped: %+v", got)
	}
}

func TestChats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{-100123, 7} {
		if err := st.Save(ctx, id, model.Session{UserID: "u"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := st.Chats(ctx)
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if diff := cmp.Diff([]int64{-100123, 7}, got); diff != "" {
		t.Errorf("chats (-want +got):\n%s", diff)
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		scope string
		want  int64
		ok    bool
	}{
		{scope: Scope(99), want: 99, ok: true},
		{scope: Scope(-5), want: -5, ok: true},
		{scope: "user:1"},
		{scope: "chat:abc"},
	}
	for _, tt := range tests {
		got, ok := ParseScope(tt.scope)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseScope(%q) = %d, %v; want %d, %v", tt.scope, got, ok, tt.want, tt.ok)
		}
	}
}

type fakeRefresher struct {
	calls []string
	next  model.Session
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (model.Session, error) {
	f.calls = append(f.calls, refreshToken)
	return f.next, f.err
}

var renewNow = time.Unix(1_700_000_000, 0)

func expiring() model.Session {
	return model.Session{UserID: "u1", Email: "u@example.com", AccessToken: "jwt-1", RefreshToken: "r-1", ExpiresAt: renewNow.Add(30 * time.Second).Unix()}
}

func renewed() model.Session {
	return model.Session{UserID: "u1", Email: "u@example.com", AccessToken: "jwt-2", RefreshToken: "r-2", ExpiresAt: renewNow.Add(time.Hour).Unix()}
}

func TestRenew(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		sess       model.Session
		refresher  *fakeRefresher
		want       model.Session
		wantErr    error
		wantStored model.Session
		wantCalls  []string
	}{
		{
			name:       "fresh token untouched",
			sess:       renewed(),
			refresher:  &fakeRefresher{},
			want:       renewed(),
			wantStored: renewed(),
		},
		{
			name:       "unknown expiry untouched",
			sess:       model.Session{UserID: "u1", AccessToken: "jwt"},
			refresher:  &fakeRefresher{},
			want:       model.Session{UserID: "u1", AccessToken: "jwt"},
			wantStored: model.Session{UserID: "u1", AccessToken: "jwt"},
		},
		{
			name:       "expiring token refreshed and stored",
			sess:       expiring(),
			refresher:  &fakeRefresher{next: renewed()},
			want:       renewed(),
			wantStored: renewed(),
			wantCalls:  []string{"r-1"},
		},
		{
			name:      "rejected refresh token drops session",
			sess:      expiring(),
			refresher: &fakeRefresher{err: fmt.Errorf("%w: invalid_grant", backend.ErrUnauthorized)},
			wantErr:   ErrExpired,
			wantCalls: []string{"r-1"},
		},
		{
			name: "missing refresh token drops session",
			sess: func() model.Session {
				s := expiring()
				s.RefreshToken = ""
				return s
			}(),
			refresher: &fakeRefresher{},
			wantErr:   ErrExpired,
		},
		{
			name:       "transient failure keeps session",
			sess:       expiring(),
			refresher:  &fakeRefresher{err: errors.New("503")},
			want:       expiring(),
			wantStored: expiring(),
			wantCalls:  []string{"r-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t).WithClock(func() time.Time { return renewNow })
			if err := st.Save(ctx, 7, tt.sess); err != nil {
				t.Fatalf("seed: %v", err)
			}

			got, err := st.Renew(ctx, 7, tt.sess, tt.refresher)
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("session (-want +got):\n%s", diff)
			}
			stored, err := st.Load(ctx, 7)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff(tt.wantStored, stored); diff != "" {
				t.Errorf("stored (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCalls, tt.refresher.calls); diff != "" {
				t.Errorf("refresh calls (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenewPicksUpStoredSession(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t).WithClock(func() time.Time { return renewNow })
	if err := st.Save(ctx, 7, renewed()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := &fakeRefresher{}
	got, err := st.Renew(ctx, 7, expiring(), r)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if diff := cmp.Diff(renewed(), got); diff != "" {
		t.Errorf("session (-want +got):\n%s", diff)
	}
	if len(r.calls) != 0 {
		t.Errorf("refresh called %v, want no calls", r.calls)
	}
}
