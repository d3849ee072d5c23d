// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagsync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leo-stotch/qpanel/internal/models"
)

type fakeClient struct {
	files       map[string]qbt.TorrentFiles
	fileErrs    map[string]error
	added       map[string][]string
	removed     map[string][]string
	shareResets []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		files:    make(map[string]qbt.TorrentFiles),
		fileErrs: make(map[string]error),
		added:    make(map[string][]string),
		removed:  make(map[string][]string),
	}
}

func (f *fakeClient) GetFilesInformationCtx(_ context.Context, hash string) (*qbt.TorrentFiles, error) {
	if err, ok := f.fileErrs[hash]; ok {
		return nil, err
	}
	files := f.files[hash]
	return &files, nil
}

func (f *fakeClient) AddTagsCtx(_ context.Context, hashes []string, tags string) error {
	for _, h := range hashes {
		f.added[h] = append(f.added[h], tags)
	}
	return nil
}

func (f *fakeClient) RemoveTagsCtx(_ context.Context, hashes []string, tags string) error {
	for _, h := range hashes {
		f.removed[h] = append(f.removed[h], tags)
	}
	return nil
}

func (f *fakeClient) SetTorrentShareLimitCtx(_ context.Context, hashes []string, ratio float64, seedingMinutes, inactiveMinutes int64) error {
	if ratio == inheritLimit && seedingMinutes == inheritLimit && inactiveMinutes == inheritLimit {
		f.shareResets = append(f.shareResets, hashes...)
	}
	return nil
}

type fakeLogger struct {
	actions []string
}

func (f *fakeLogger) Create(_ context.Context, _ int, action, _ string) error {
	f.actions = append(f.actions, action)
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Send(message string) {
	f.messages = append(f.messages, message)
}

// linkCounts builds a Service whose link counts come from the map;
// paths not present report an error like a missing file would.
func serviceWithLinkCounts(counts map[string]uint64) *Service {
	svc := NewService()
	svc.linkCountProvider = func(path string) (uint64, error) {
		if n, ok := counts[path]; ok {
			return n, nil
		}
		return 0, errors.New("no such file")
	}
	return svc
}

func testInstance() *models.Instance {
	return &models.Instance{
		ID:         1,
		Name:       "seedbox",
		RemoteRoot: "/downloads",
		LocalRoot:  "/mnt/downloads",
	}
}

func completedLongAgo() int64 {
	return time.Now().Add(-2 * time.Hour).Unix()
}

func TestSyncHardlinkTagsAddsTag(t *testing.T) {
	instance := testInstance()
	torrent := qbt.Torrent{
		Hash: "aaa", Name: "Some.Release",
		SavePath:     "/downloads/Some.Release",
		CompletionOn: completedLongAgo(),
	}

	client := newFakeClient()
	client.files["aaa"] = qbt.TorrentFiles{{Name: "file.mkv"}}

	// The file exists locally with a single link.
	svc := serviceWithLinkCounts(map[string]uint64{
		filepath.Join("/mnt/downloads", "Some.Release", "file.mkv"): 1,
	})

	logs := &fakeLogger{}
	notify := &fakeNotifier{}

	require.NoError(t, svc.SyncHardlinkTags(context.Background(), instance,
		[]qbt.Torrent{torrent}, client, logs, notify))

	assert.Equal(t, []string{TagNoHardlinks}, client.added["aaa"])
	assert.Equal(t, []string{"Tagged with noHL"}, logs.actions)
	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "Some.Release")
}

func TestSyncHardlinkTagsGracePeriod(t *testing.T) {
	instance := testInstance()
	justFinished := qbt.Torrent{
		Hash: "aaa", Name: "Fresh",
		SavePath:     "/downloads/Fresh",
		CompletionOn: time.Now().Add(-30 * time.Minute).Unix(),
	}
	incomplete := qbt.Torrent{
		Hash: "bbb", Name: "Downloading",
		SavePath: "/downloads/Downloading",
	}

	client := newFakeClient()
	client.files["aaa"] = qbt.TorrentFiles{{Name: "f.mkv"}}
	client.files["bbb"] = qbt.TorrentFiles{{Name: "g.mkv"}}

	svc := serviceWithLinkCounts(nil)
	logs := &fakeLogger{}

	require.NoError(t, svc.SyncHardlinkTags(context.Background(), instance,
		[]qbt.Torrent{justFinished, incomplete}, client, logs, nil))

	// Completed under an hour ago and never-completed: neither tagged.
	assert.Empty(t, client.added)
	assert.Empty(t, logs.actions)
}

func TestSyncHardlinkTagsRemovesTagAndResetsLimits(t *testing.T) {
	instance := testInstance()
	torrent := qbt.Torrent{
		Hash: "aaa", Name: "Linked.Again",
		SavePath: "/downloads/Linked.Again",
		Tags:     "music, noHL",
	}

	client := newFakeClient()
	client.files["aaa"] = qbt.TorrentFiles{{Name: "file.flac"}}

	svc := serviceWithLinkCounts(map[string]uint64{
		filepath.Join("/mnt/downloads", "Linked.Again", "file.flac"): 2,
	})

	logs := &fakeLogger{}

	require.NoError(t, svc.SyncHardlinkTags(context.Background(), instance,
		[]qbt.Torrent{torrent}, client, logs, nil))

	assert.Equal(t, []string{TagNoHardlinks}, client.removed["aaa"])
	assert.Equal(t, []string{"aaa"}, client.shareResets)
	assert.Equal(t, []string{"Removed 'noHL' tag from 'Linked.Again'"}, logs.actions)
}

func TestSyncHardlinkTagsStableStatesUntouched(t *testing.T) {
	instance := testInstance()
	taggedNoLink := qbt.Torrent{
		Hash: "aaa", Name: "Still.NoHL",
		SavePath: "/downloads/Still.NoHL", Tags: "noHL",
		CompletionOn: completedLongAgo(),
	}
	linkedUntagged := qbt.Torrent{
		Hash: "bbb", Name: "Healthy",
		SavePath:     "/downloads/Healthy",
		CompletionOn: completedLongAgo(),
	}

	client := newFakeClient()
	client.files["aaa"] = qbt.TorrentFiles{{Name: "a.mkv"}}
	client.files["bbb"] = qbt.TorrentFiles{{Name: "b.mkv"}}

	svc := serviceWithLinkCounts(map[string]uint64{
		filepath.Join("/mnt/downloads", "Healthy", "b.mkv"): 2,
	})

	logs := &fakeLogger{}

	require.NoError(t, svc.SyncHardlinkTags(context.Background(), instance,
		[]qbt.Torrent{taggedNoLink, linkedUntagged}, client, logs, nil))

	assert.Empty(t, client.added)
	assert.Empty(t, client.removed)
	assert.Empty(t, logs.actions)
}

func TestSyncHardlinkTagsRequiresPathMapping(t *testing.T) {
	instance := &models.Instance{ID: 1, Name: "unmapped"}
	torrent := qbt.Torrent{Hash: "aaa", Name: "T", CompletionOn: completedLongAgo()}

	client := newFakeClient()
	svc := serviceWithLinkCounts(nil)
	logs := &fakeLogger{}

	require.NoError(t, svc.SyncHardlinkTags(context.Background(), instance,
		[]qbt.Torrent{torrent}, client, logs, nil))

	assert.Empty(t, client.added)
}

func TestSyncHardlinkTagsSkipsTorrentOnFileListError(t *testing.T) {
	instance := testInstance()
	broken := qbt.Torrent{Hash: "bad", Name: "Broken", SavePath: "/downloads/B", CompletionOn: completedLongAgo()}
	fine := qbt.Torrent{Hash: "good", Name: "Fine", SavePath: "/downloads/F", CompletionOn: completedLongAgo()}

	client := newFakeClient()
	client.fileErrs["bad"] = errors.New("api error")
	client.files["good"] = qbt.TorrentFiles{{Name: "f.mkv"}}

	svc := serviceWithLinkCounts(nil)
	logs := &fakeLogger{}

	require.NoError(t, svc.SyncHardlinkTags(context.Background(), instance,
		[]qbt.Torrent{broken, fine}, client, logs, nil))

	// The broken torrent is skipped, the healthy one still processed.
	assert.Equal(t, []string{TagNoHardlinks}, client.added["good"])
	assert.NotContains(t, client.added, "bad")
}

func TestSyncUnregisteredTagsAddsTag(t *testing.T) {
	instance := testInstance()
	torrent := qbt.Torrent{
		Hash: "aaa", Name: "Dropped.Release",
		Trackers: []qbt.TorrentTracker{
			{Url: "https://tracker.example.org/announce", Message: "Unregistered torrent"},
		},
	}

	client := newFakeClient()
	svc := NewService()
	logs := &fakeLogger{}
	notify := &fakeNotifier{}

	require.NoError(t, svc.SyncUnregisteredTags(context.Background(), instance,
		[]qbt.Torrent{torrent}, client, logs, notify))

	assert.Equal(t, []string{TagUnregistered}, client.added["aaa"])
	assert.Equal(t, []string{"Tagged 'Dropped.Release' as unregistered"}, logs.actions)
	require.Len(t, notify.messages, 1)
	assert.Contains(t, notify.messages[0], "Unregistered torrent")
}

func TestSyncUnregisteredTagsNeedsNoPathMapping(t *testing.T) {
	// Unlike the hard-link check, tracker state needs no local mount.
	instance := &models.Instance{ID: 1, Name: "unmapped"}
	torrent := qbt.Torrent{
		Hash: "aaa", Name: "Dropped.Release",
		Trackers: []qbt.TorrentTracker{
			{Url: "https://tracker.example.org/announce", Message: "Torrent not found"},
		},
	}

	client := newFakeClient()
	svc := NewService()
	logs := &fakeLogger{}

	require.NoError(t, svc.SyncUnregisteredTags(context.Background(), instance,
		[]qbt.Torrent{torrent}, client, logs, nil))

	assert.Equal(t, []string{TagUnregistered}, client.added["aaa"])
}

func TestSyncUnregisteredTagsRemovesTagWhenHealthy(t *testing.T) {
	instance := testInstance()
	torrent := qbt.Torrent{
		Hash: "aaa", Name: "Recovered",
		Tags: "unregistered",
		Trackers: []qbt.TorrentTracker{
			{Url: "https://tracker.example.org/announce", Message: "working"},
		},
	}

	client := newFakeClient()
	svc := NewService()
	logs := &fakeLogger{}

	require.NoError(t, svc.SyncUnregisteredTags(context.Background(), instance,
		[]qbt.Torrent{torrent}, client, logs, nil))

	assert.Equal(t, []string{TagUnregistered}, client.removed["aaa"])
	assert.Equal(t, []string{"aaa"}, client.shareResets)
	assert.Equal(t, []string{"Removed 'unregistered' tag from 'Recovered'"}, logs.actions)
}

func TestSyncUnregisteredTagsAlreadyTaggedIsNoop(t *testing.T) {
	instance := testInstance()
	torrent := qbt.Torrent{
		Hash: "aaa", Name: "Known.Dead",
		Tags: "unregistered",
		Trackers: []qbt.TorrentTracker{
			{Url: "https://tracker.example.org/announce", Message: "Torrent has been deleted"},
		},
	}

	client := newFakeClient()
	svc := NewService()
	logs := &fakeLogger{}
	notify := &fakeNotifier{}

	require.NoError(t, svc.SyncUnregisteredTags(context.Background(), instance,
		[]qbt.Torrent{torrent}, client, logs, notify))

	assert.Empty(t, client.added)
	assert.Empty(t, client.removed)
	assert.Empty(t, logs.actions)
	assert.Empty(t, notify.messages)
}
