package quota

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"contxtra_bot/internal/model"
)

type stubResolver struct {
	ip  string
	err error
}

func (s *stubResolver) PublicIP(_ context.Context) (string, error) {
	return s.ip, s.err
}

type stubCounter struct {
	usage   model.TrialUsage
	err     error
	checks  []string
	tracked []string
}

func (s *stubCounter) CheckTrialUsage(_ context.Context, ip string) (model.TrialUsage, error) {
	s.checks = append(s.checks, ip)
	return s.usage, s.err
}

func (s *stubCounter) TrackAnalyzerUsage(_ context.Context, ip string) (model.TrialUsage, error) {
	s.tracked = append(s.tracked, ip)
	if s.err != nil {
		return model.TrialUsage{}, s.err
	}
	if s.usage.RemainingUses > 0 {
		s.usage.RemainingUses--
	}
	if s.usage.RemainingUses == 0 {
		s.usage.TrialExpired = true
	}
	return s.usage, nil
}

func TestCheckDoesNotConsume(t *testing.T) {
	counter := &stubCounter{usage: model.TrialUsage{RemainingUses: 3}}
	tr := NewTracker(&stubResolver{ip: "198.51.100.4"}, counter)

	for i := 0; i < 3; i++ {
		got, err := tr.Check(context.Background())
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if diff := cmp.Diff(model.TrialUsage{RemainingUses: 3}, got); diff != "" {
			t.Errorf("usage (-want +got):\n%s", diff)
		}
	}
	if len(counter.tracked) != 0 {
		t.Errorf("check consumed uses: %v", counter.tracked)
	}
	if diff := cmp.Diff([]string{"198.51.100.4", "198.51.100.4", "198.51.100.4"}, counter.checks); diff != "" {
		t.Errorf("checked ips (-want +got):\n%s", diff)
	}
}

func TestTrackConsumes(t *testing.T) {
	counter := &stubCounter{usage: model.TrialUsage{RemainingUses: 1}}
	tr := NewTracker(&stubResolver{ip: "198.51.100.4"}, counter)

	got, err := tr.Track(context.Background())
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if diff := cmp.Diff(model.TrialUsage{RemainingUses: 0, TrialExpired: true}, got); diff != "" {
		t.Errorf("usage (-want +got):\n%s", diff)
	}
	if !got.TrialExpired || got.RemainingUses != 0 {
		t.Errorf("expired usage must have zero remaining: %+v", got)
	}
}

func TestFailuresWrapQuotaCheckFailed(t *testing.T) {
	tests := []struct {
		name     string
		resolver *stubResolver
		counter  *stubCounter
	}{
		{name: "ip lookup fails", resolver: &stubResolver{err: errors.New("dns")}, counter: &stubCounter{}},
		{name: "counter fails", resolver: &stubResolver{ip: "198.51.100.4"}, counter: &stubCounter{err: errors.New("503")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(tt.resolver, tt.counter)
			if _, err := tr.Check(context.Background()); !errors.Is(err, ErrQuotaCheckFailed) {
				t.Errorf("Check err = %v, want ErrQuotaCheckFailed", err)
			}
			if _, err := tr.Track(context.Background()); !errors.Is(err, ErrQuotaCheckFailed) {
				t.Errorf("Track err = %v, want ErrQuotaCheckFailed", err)
			}
		})
	}
}

type mockHTTP struct {
	body   string
	status int
	err    error
}

func (m *mockHTTP) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func TestIPLookup(t *testing.T) {
	tests := []struct {
		name    string
		http    *mockHTTP
		want    string
		wantErr bool
	}{
		{name: "ipv4", http: &mockHTTP{status: 200, body: `{"ip":"203.0.113.9"}`}, want: "203.0.113.9"},
		{name: "ipv6", http: &mockHTTP{status: 200, body: `{"ip":"2001:db8::1"}`}, want: "2001:db8::1"},
		{name: "bad status", http: &mockHTTP{status: 429, body: `slow down`}, wantErr: true},
		{name: "garbage ip", http: &mockHTTP{status: 200, body: `{"ip":"nope"}`}, wantErr: true},
		{name: "not json", http: &mockHTTP{status: 200, body: `203.0.113.9`}, wantErr: true},
		{name: "network", http: &mockHTTP{err: io.ErrUnexpectedEOF}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewIPLookup(tt.http, "https://api.ipify.org?format=json").PublicIP(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ip (-want +got):\n%s", diff)
			}
		})
	}
}
