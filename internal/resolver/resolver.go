// Package resolver turns mail folder data into per-channel unread counts.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/graph"
)

// MailAPI is the subset of the Graph client the resolver needs.
// This allows mocking in tests.
type MailAPI interface {
	InboxUnread(ctx context.Context, token string) (int, error)
	TopLevelFolders(ctx context.Context, token string) ([]graph.Folder, error)
	InboxChildFolders(ctx context.Context, token string) ([]graph.Folder, error)
}

// Channel binds a channel key to its source: the inbox, or an alert folder
// matched by display name.
type Channel struct {
	Key    counter.Key
	Inbox  bool
	Folder string
}

// Resolver fetches counts for a fixed list of channels.
type Resolver struct {
	api      MailAPI
	channels []Channel
	set      counter.ChannelSet
	log      *logrus.Entry
}

// New builds a resolver. Exactly one channel must be the inbox.
func New(api MailAPI, channels []Channel, log *logrus.Entry) (*Resolver, error) {
	keys := make([]counter.Key, 0, len(channels))
	inbox := 0
	for _, ch := range channels {
		keys = append(keys, ch.Key)
		if ch.Inbox {
			inbox++
		} else if strings.TrimSpace(ch.Folder) == "" {
			return nil, fmt.Errorf("channel %q: folder name is required", ch.Key)
		}
	}
	if inbox != 1 {
		return nil, fmt.Errorf("exactly one inbox channel required, got %d", inbox)
	}
	set, err := counter.NewChannelSet(keys...)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{
		api:      api,
		channels: channels,
		set:      set,
		log:      log.WithField("component", "resolver"),
	}, nil
}

// Set returns the channel set the resolver produces counts for.
func (r *Resolver) Set() counter.ChannelSet {
	return r.set
}

// Resolve fetches the inbox count and both folder listings concurrently and
// maps them onto channels. A failed listing is replaced by an empty one, so
// its channels read zero; only an inbox failure is returned.
func (r *Resolver) Resolve(ctx context.Context, token string) (counter.Counts, error) {
	var (
		g        errgroup.Group
		inbox    int
		topLevel []graph.Folder
		children []graph.Folder
		mu       sync.Mutex
		degraded []string
	)

	g.Go(func() error {
		n, err := r.api.InboxUnread(ctx, token)
		if err != nil {
			return fmt.Errorf("inbox unread: %w", err)
		}
		inbox = n
		return nil
	})
	g.Go(func() error {
		folders, err := r.api.TopLevelFolders(ctx, token)
		if err != nil {
			r.log.WithError(err).Warn("top-level folder listing failed; treating as empty")
			mu.Lock()
			degraded = append(degraded, "top_level")
			mu.Unlock()
			return nil
		}
		topLevel = folders
		return nil
	})
	g.Go(func() error {
		folders, err := r.api.InboxChildFolders(ctx, token)
		if err != nil {
			r.log.WithError(err).Warn("inbox child folder listing failed; treating as empty")
			mu.Lock()
			degraded = append(degraded, "inbox_children")
			mu.Unlock()
			return nil
		}
		children = folders
		return nil
	})

	if err := g.Wait(); err != nil {
		return counter.Counts{}, err
	}

	folders := MergeFolders(topLevel, children)
	raw := make(map[counter.Key]int, len(r.channels))
	for _, ch := range r.channels {
		if ch.Inbox {
			raw[ch.Key] = inbox
			continue
		}
		if f, ok := FindFolder(folders, ch.Folder); ok {
			raw[ch.Key] = f.Unread()
		}
	}

	if len(degraded) > 0 {
		r.log.WithField("listings", degraded).Debug("resolved with partial folder data")
	}
	return counter.NewCounts(r.set, raw), nil
}

// MergeFolders concatenates listings, keeping the first folder seen for each
// ID. Folders without an ID are kept as-is.
func MergeFolders(lists ...[]graph.Folder) []graph.Folder {
	seen := make(map[string]bool)
	var out []graph.Folder
	for _, list := range lists {
		for _, f := range list {
			if f.ID != "" {
				if seen[f.ID] {
					continue
				}
				seen[f.ID] = true
			}
			out = append(out, f)
		}
	}
	return out
}

// NormalizeName folds a folder name for matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FindFolder returns the first folder whose normalized display name equals
// the normalized target.
func FindFolder(folders []graph.Folder, name string) (graph.Folder, bool) {
	want := NormalizeName(name)
	for _, f := range folders {
		if NormalizeName(f.DisplayName) == want {
			return f, true
		}
	}
	return graph.Folder{}, false
}
