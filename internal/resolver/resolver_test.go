package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/graph"
)

type mockAPI struct {
	inbox       int
	inboxErr    error
	topLevel    []graph.Folder
	topErr      error
	children    []graph.Folder
	childrenErr error
}

func (m *mockAPI) InboxUnread(ctx context.Context, token string) (int, error) {
	return m.inbox, m.inboxErr
}

func (m *mockAPI) TopLevelFolders(ctx context.Context, token string) ([]graph.Folder, error) {
	return m.topLevel, m.topErr
}

func (m *mockAPI) InboxChildFolders(ctx context.Context, token string) ([]graph.Folder, error) {
	return m.children, m.childrenErr
}

func intPtr(n int) *int { return &n }

func folder(id, name string, unread int) graph.Folder {
	return graph.Folder{ID: id, DisplayName: name, UnreadItemCount: intPtr(unread)}
}

var channels = []Channel{
	{Key: "outlook", Inbox: true},
	{Key: "slack", Folder: "PTC - Slack Alerts"},
	{Key: "hubspot", Folder: "PTC - HubSpot Alerts"},
	{Key: "monday", Folder: "PTC - Monday Alerts"},
}

func newResolver(t *testing.T, api MailAPI) *Resolver {
	t.Helper()
	r, err := New(api, channels, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		channels []Channel
	}{
		{"no inbox", []Channel{{Key: "slack", Folder: "x"}}},
		{"two inboxes", []Channel{{Key: "a", Inbox: true}, {Key: "b", Inbox: true}}},
		{"alert without folder", []Channel{{Key: "a", Inbox: true}, {Key: "b", Folder: "  "}}},
		{"duplicate key", []Channel{{Key: "a", Inbox: true}, {Key: "a", Folder: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&mockAPI{}, tt.channels, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolve_Basic(t *testing.T) {
	api := &mockAPI{
		inbox: 10,
		topLevel: []graph.Folder{
			folder("1", "Inbox", 10),
			folder("2", "PTC - Slack Alerts", 2),
		},
		children: []graph.Folder{
			folder("3", "PTC - Monday Alerts", 1),
		},
	}

	counts, err := newResolver(t, api).Resolve(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := map[counter.Key]int{"outlook": 10, "slack": 2, "hubspot": 0, "monday": 1}
	for k, v := range want {
		if counts.Get(k) != v {
			t.Errorf("%s: expected %d, got %d", k, v, counts.Get(k))
		}
	}
	if counts.Total != 13 {
		t.Errorf("expected total 13, got %d", counts.Total)
	}
}

func TestResolve_NameMatchTrimmedCaseInsensitive(t *testing.T) {
	api := &mockAPI{
		topLevel: []graph.Folder{folder("1", "ptc - slack alerts", 7)},
	}
	r, err := New(api, []Channel{
		{Key: "outlook", Inbox: true},
		{Key: "slack", Folder: " PTC - Slack Alerts "},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	counts, err := r.Resolve(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if counts.Get("slack") != 7 {
		t.Errorf("expected trimmed case-insensitive match, got %d", counts.Get("slack"))
	}
}

func TestResolve_DedupByID(t *testing.T) {
	// The same folder can show up in both listings; the top-level copy wins.
	api := &mockAPI{
		topLevel: []graph.Folder{folder("dup", "PTC - Slack Alerts", 4)},
		children: []graph.Folder{folder("dup", "PTC - Slack Alerts", 99)},
	}
	counts, err := newResolver(t, api).Resolve(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if counts.Get("slack") != 4 {
		t.Errorf("expected first occurrence to win, got %d", counts.Get("slack"))
	}
}

func TestResolve_FirstNameMatchWins(t *testing.T) {
	api := &mockAPI{
		topLevel: []graph.Folder{folder("a", "PTC - HubSpot Alerts", 3)},
		children: []graph.Folder{folder("b", "ptc - hubspot alerts ", 8)},
	}
	counts, _ := newResolver(t, api).Resolve(context.Background(), "tok")
	if counts.Get("hubspot") != 3 {
		t.Errorf("expected first match in merge order, got %d", counts.Get("hubspot"))
	}
}

func TestResolve_ListingFailuresDegradeToZero(t *testing.T) {
	api := &mockAPI{
		inbox:       5,
		topErr:      errors.New("boom"),
		childrenErr: graph.NewAPIError("list_inbox_children", 503, errors.New("unavailable")),
	}
	counts, err := newResolver(t, api).Resolve(context.Background(), "tok")
	if err != nil {
		t.Fatalf("expected listing failures to be absorbed, got %v", err)
	}
	if counts.Get("outlook") != 5 {
		t.Errorf("expected inbox 5, got %d", counts.Get("outlook"))
	}
	for _, k := range []counter.Key{"slack", "hubspot", "monday"} {
		if counts.Get(k) != 0 {
			t.Errorf("%s: expected 0, got %d", k, counts.Get(k))
		}
	}
}

func TestResolve_OneListingFails(t *testing.T) {
	api := &mockAPI{
		topErr:   errors.New("boom"),
		children: []graph.Folder{folder("3", "PTC - Monday Alerts", 6)},
	}
	counts, err := newResolver(t, api).Resolve(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if counts.Get("monday") != 6 {
		t.Errorf("expected surviving listing to be used, got %d", counts.Get("monday"))
	}
}

func TestResolve_InboxFailureFails(t *testing.T) {
	api := &mockAPI{
		inboxErr: graph.NewAPIError("inbox_unread", 401, graph.ErrUnauthorized),
		topLevel: []graph.Folder{folder("2", "PTC - Slack Alerts", 2)},
	}
	_, err := newResolver(t, api).Resolve(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected inbox failure to propagate")
	}
	if !graph.IsUnauthorized(err) {
		t.Errorf("expected APIError in chain, got %v", err)
	}
}

func TestResolve_MissingUnreadAndNegative(t *testing.T) {
	api := &mockAPI{
		inbox: -3,
		topLevel: []graph.Folder{
			{ID: "1", DisplayName: "PTC - Slack Alerts"},
			folder("2", "PTC - Monday Alerts", -1),
		},
	}
	counts, _ := newResolver(t, api).Resolve(context.Background(), "tok")
	if counts.Get("slack") != 0 {
		t.Errorf("expected missing unread to be 0, got %d", counts.Get("slack"))
	}
	if counts.Get("outlook") != 0 || counts.Get("monday") != 0 {
		t.Errorf("expected negatives clamped, got %d/%d", counts.Get("outlook"), counts.Get("monday"))
	}
}

func TestMergeFolders_KeepsIDless(t *testing.T) {
	merged := MergeFolders(
		[]graph.Folder{{DisplayName: "a"}, {ID: "1"}},
		[]graph.Folder{{DisplayName: "b"}, {ID: "1"}},
	)
	if len(merged) != 3 {
		t.Errorf("expected 3 folders, got %d", len(merged))
	}
}

func TestFindFolder_NoMatch(t *testing.T) {
	if _, ok := FindFolder([]graph.Folder{folder("1", "Other", 1)}, "PTC - Slack Alerts"); ok {
		t.Error("expected no match")
	}
}
