// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package rules

import (
	"context"
	"errors"
	"testing"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leo-stotch/qpanel/internal/models"
)

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }

type shareLimitCall struct {
	hashes          []string
	ratio           float64
	seedingMinutes  int64
	inactiveMinutes int64
}

type fakeClient struct {
	shareCalls    []shareLimitCall
	uploadCalls   map[string]int64
	downloadCalls map[string]int64
	failShare     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		uploadCalls:   make(map[string]int64),
		downloadCalls: make(map[string]int64),
	}
}

func (f *fakeClient) SetTorrentShareLimitCtx(_ context.Context, hashes []string, ratio float64, seedingMinutes, inactiveMinutes int64) error {
	if f.failShare {
		return errors.New("api down")
	}
	f.shareCalls = append(f.shareCalls, shareLimitCall{hashes, ratio, seedingMinutes, inactiveMinutes})
	return nil
}

func (f *fakeClient) SetTorrentUploadLimitCtx(_ context.Context, hashes []string, limit int64) error {
	for _, h := range hashes {
		f.uploadCalls[h] = limit
	}
	return nil
}

func (f *fakeClient) SetTorrentDownloadLimitCtx(_ context.Context, hashes []string, limit int64) error {
	for _, h := range hashes {
		f.downloadCalls[h] = limit
	}
	return nil
}

type logEntry struct {
	instanceID int
	action     string
	details    string
}

type fakeLogger struct {
	entries []logEntry
}

func (f *fakeLogger) Create(_ context.Context, instanceID int, action, details string) error {
	f.entries = append(f.entries, logEntry{instanceID, action, details})
	return nil
}

func tagRule(name, value string) *models.Rule {
	return &models.Rule{Name: name, ConditionType: models.ConditionTag, ConditionValue: value}
}

func TestMatchRuleTagSemantics(t *testing.T) {
	rule := tagRule("r", "private")

	tests := []struct {
		name string
		tags string
		want bool
	}{
		{"exact member", "private", true},
		{"member among others", "music, private ,archive", true},
		{"case sensitive", "Private", false},
		{"substring is not a match", "private-archive", false},
		{"empty tags", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchRule(qbt.Torrent{Tags: tt.tags}, []*models.Rule{rule})
			assert.Equal(t, tt.want, got != nil)
		})
	}
}

func TestMatchRuleCommaSeparatedValuesAreOR(t *testing.T) {
	rule := tagRule("r", "tv, movies")

	assert.NotNil(t, MatchRule(qbt.Torrent{Tags: "movies"}, []*models.Rule{rule}))
	assert.NotNil(t, MatchRule(qbt.Torrent{Tags: "tv"}, []*models.Rule{rule}))
	assert.Nil(t, MatchRule(qbt.Torrent{Tags: "music"}, []*models.Rule{rule}))
}

func TestMatchRuleTrackerSubstring(t *testing.T) {
	rule := &models.Rule{
		Name:           "r",
		ConditionType:  models.ConditionTracker,
		ConditionValue: "tracker.example.org",
	}

	matching := qbt.Torrent{Trackers: []qbt.TorrentTracker{
		{Url: "udp://other.example.net/announce"},
		{Url: "https://tracker.example.org:2710/announce?key=abc"},
	}}
	assert.NotNil(t, MatchRule(matching, []*models.Rule{rule}))

	other := qbt.Torrent{Trackers: []qbt.TorrentTracker{
		{Url: "udp://other.example.net/announce"},
	}}
	assert.Nil(t, MatchRule(other, []*models.Rule{rule}))

	// The flat Tracker field also counts when the list is absent.
	flat := qbt.Torrent{Tracker: "https://tracker.example.org/announce"}
	assert.NotNil(t, MatchRule(flat, []*models.Rule{rule}))
}

func TestMatchRuleFirstMatchWins(t *testing.T) {
	first := tagRule("first", "shared")
	second := tagRule("second", "shared")

	got := MatchRule(qbt.Torrent{Tags: "shared"}, []*models.Rule{first, second})
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Name)
}

func TestApplyIdempotent(t *testing.T) {
	rule := tagRule("limits", "private")
	rule.RatioLimit = float64Ptr(2.0)
	rule.SeedingTimeLimit = int64Ptr(10080)

	conforming := qbt.Torrent{
		Hash: "aaa", Name: "Conforming", Tags: "private",
		RatioLimit: 2.0, SeedingTimeLimit: 10080,
	}

	client := newFakeClient()
	logs := &fakeLogger{}

	applied, err := Apply(context.Background(), 1, []qbt.Torrent{conforming}, []*models.Rule{rule}, client, logs)
	require.NoError(t, err)

	// Already conforming: no API calls, no log entries.
	assert.Zero(t, applied)
	assert.Empty(t, client.shareCalls)
	assert.Empty(t, logs.entries)

	// A second pass over the post-application state is also a no-op.
	applied, err = Apply(context.Background(), 1, []qbt.Torrent{conforming}, []*models.Rule{rule}, client, logs)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestApplySetsLimitsAndLogs(t *testing.T) {
	rule := tagRule("limits", "private")
	rule.RatioLimit = float64Ptr(2.0)
	rule.UploadLimit = int64Ptr(102400)

	torrent := qbt.Torrent{Hash: "aaa", Name: "Some.Release", Tags: "private", RatioLimit: -2}

	client := newFakeClient()
	logs := &fakeLogger{}

	applied, err := Apply(context.Background(), 1, []qbt.Torrent{torrent}, []*models.Rule{rule}, client, logs)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	// One combined share limit call with the unset seeding time inheriting.
	require.Len(t, client.shareCalls, 1)
	call := client.shareCalls[0]
	assert.Equal(t, []string{"aaa"}, call.hashes)
	assert.Equal(t, 2.0, call.ratio)
	assert.Equal(t, int64(-2), call.seedingMinutes)
	assert.Equal(t, int64(-2), call.inactiveMinutes)

	assert.Equal(t, int64(102400), client.uploadCalls["aaa"])
	assert.Empty(t, client.downloadCalls)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, "Applied rule 'limits' to 'Some.Release'", logs.entries[0].action)
	assert.Equal(t, "Share Ratio: 2, Up: 100KiB/s", logs.entries[0].details)
}

func TestApplyInertRuleConsumesMatchSlot(t *testing.T) {
	inert := tagRule("inert", "private")
	limiter := tagRule("limiter", "private")
	limiter.UploadLimit = int64Ptr(1024)

	torrent := qbt.Torrent{Hash: "aaa", Name: "T", Tags: "private"}

	client := newFakeClient()
	logs := &fakeLogger{}

	applied, err := Apply(context.Background(), 1, []qbt.Torrent{torrent}, []*models.Rule{inert, limiter}, client, logs)
	require.NoError(t, err)

	// The inert first rule matches and stops the chain; the limiter
	// never runs.
	assert.Zero(t, applied)
	assert.Empty(t, client.uploadCalls)
	assert.Empty(t, logs.entries)
}

func TestApplyContinuesAfterClientError(t *testing.T) {
	rule := tagRule("limits", "private")
	rule.RatioLimit = float64Ptr(1.5)

	torrents := []qbt.Torrent{
		{Hash: "aaa", Name: "Fails", Tags: "private"},
		{Hash: "bbb", Name: "Unlimited", Tags: "private", UpLimit: -1},
	}

	client := newFakeClient()
	client.failShare = true
	logs := &fakeLogger{}

	applied, err := Apply(context.Background(), 1, torrents, []*models.Rule{rule}, client, logs)
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Empty(t, logs.entries)
}

func TestApplyNoRules(t *testing.T) {
	client := newFakeClient()
	logs := &fakeLogger{}

	applied, err := Apply(context.Background(), 1,
		[]qbt.Torrent{{Hash: "aaa", Tags: "private"}}, nil, client, logs)
	require.NoError(t, err)
	assert.Zero(t, applied)
}
