// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jobs drives the periodic reconciliation of every managed
// qBittorrent instance: rule application, hygiene tagging, cross-seed
// pausing and the global orphan scan.
package jobs

import (
	"context"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/leo-stotch/qpanel/internal/database"
	"github.com/leo-stotch/qpanel/internal/domain"
	"github.com/leo-stotch/qpanel/internal/models"
	"github.com/leo-stotch/qpanel/internal/qbittorrent"
	"github.com/leo-stotch/qpanel/internal/services/crossseed"
	"github.com/leo-stotch/qpanel/internal/services/notifications"
	"github.com/leo-stotch/qpanel/internal/services/orphanscan"
	"github.com/leo-stotch/qpanel/internal/services/rules"
	"github.com/leo-stotch/qpanel/internal/services/tagsync"
	"github.com/leo-stotch/qpanel/pkg/pathutil"
)

// Scheduler runs the reconciliation jobs serially at a fixed interval.
// Jobs never overlap: a run that overshoots the interval simply delays
// the next one.
type Scheduler struct {
	cfg           *domain.Config
	db            *database.DB
	instanceStore *models.InstanceStore
	ruleStore     *models.RuleStore
	pool          *qbittorrent.ClientPool
	tags          *tagsync.Service
	notifier      *notifications.Service
}

func NewScheduler(cfg *domain.Config, db *database.DB, instanceStore *models.InstanceStore, ruleStore *models.RuleStore, pool *qbittorrent.ClientPool, notifier *notifications.Service) *Scheduler {
	return &Scheduler{
		cfg:           cfg,
		db:            db,
		instanceStore: instanceStore,
		ruleStore:     ruleStore,
		pool:          pool,
		tags:          tagsync.NewService(),
		notifier:      notifier,
	}
}

// Start launches the scheduler loop. The first run happens immediately,
// subsequent runs are spaced by the configured check interval.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	s.RunAll(ctx)

	timer := time.NewTimer(s.cfg.CheckInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.RunAll(ctx)
			// Interval is re-read each cycle so config changes apply
			// without a restart.
			timer.Reset(s.cfg.CheckInterval())
		}
	}
}

// RunAll executes the five jobs in sequence against the current set of
// instances.
func (s *Scheduler) RunAll(ctx context.Context) {
	started := time.Now()

	instances, err := s.instanceStore.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("jobs: failed to list instances")
		return
	}
	if len(instances) == 0 {
		return
	}

	log.Debug().Int("instances", len(instances)).Msg("jobs: starting reconciliation run")

	s.applyRules(ctx, instances)
	s.syncHardlinkTags(ctx, instances)
	s.syncUnregisteredTags(ctx, instances)
	s.pauseCrossSeeded(ctx, instances)
	s.detectOrphans(ctx, instances)

	log.Debug().Dur("elapsed", time.Since(started)).Msg("jobs: reconciliation run finished")
}

// torrentsFor fetches the full torrent list for an instance through the
// pooled client.
func (s *Scheduler) torrentsFor(ctx context.Context, instance *models.Instance) (*qbittorrent.Client, []qbt.Torrent, error) {
	client, err := s.pool.GetClient(ctx, instance.ID)
	if err != nil {
		return nil, nil, err
	}

	torrents, err := client.GetAllTorrents(ctx)
	if err != nil {
		s.pool.InvalidateClient(instance.ID)
		return nil, nil, err
	}
	return client, torrents, nil
}

func (s *Scheduler) applyRules(ctx context.Context, instances []*models.Instance) {
	for _, instance := range instances {
		if err := s.applyRulesForInstance(ctx, instance); err != nil {
			log.Error().Err(err).Int("instanceID", instance.ID).Str("instance", instance.Name).
				Msg("jobs: rule application failed")
		}
	}
}

func (s *Scheduler) applyRulesForInstance(ctx context.Context, instance *models.Instance) error {
	instanceRules, err := s.ruleStore.ListByInstance(ctx, instance.ID)
	if err != nil {
		return err
	}
	if len(instanceRules) == 0 {
		return nil
	}

	client, torrents, err := s.torrentsFor(ctx, instance)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	applied, err := rules.Apply(ctx, instance.ID, torrents, instanceRules, client, models.NewActionLogStore(tx))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if applied > 0 {
		log.Info().Int("instanceID", instance.ID).Int("applied", applied).Msg("jobs: applied rules")
	}
	return nil
}

func (s *Scheduler) syncHardlinkTags(ctx context.Context, instances []*models.Instance) {
	for _, instance := range instances {
		if !instance.TagNoHardlinks || !instance.HasPathMapping() {
			continue
		}

		if err := s.syncHardlinkTagsForInstance(ctx, instance); err != nil {
			log.Error().Err(err).Int("instanceID", instance.ID).Str("instance", instance.Name).
				Msg("jobs: hard-link tagging failed")
		}
	}
}

func (s *Scheduler) syncHardlinkTagsForInstance(ctx context.Context, instance *models.Instance) error {
	client, torrents, err := s.torrentsFor(ctx, instance)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.tags.SyncHardlinkTags(ctx, instance, torrents, client, models.NewActionLogStore(tx), s.notifier); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Scheduler) syncUnregisteredTags(ctx context.Context, instances []*models.Instance) {
	for _, instance := range instances {
		if !instance.TagUnregistered {
			continue
		}

		if err := s.syncUnregisteredTagsForInstance(ctx, instance); err != nil {
			log.Error().Err(err).Int("instanceID", instance.ID).Str("instance", instance.Name).
				Msg("jobs: unregistered tagging failed")
		}
	}
}

func (s *Scheduler) syncUnregisteredTagsForInstance(ctx context.Context, instance *models.Instance) error {
	client, torrents, err := s.torrentsFor(ctx, instance)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.tags.SyncUnregisteredTags(ctx, instance, torrents, client, models.NewActionLogStore(tx), s.notifier); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Scheduler) pauseCrossSeeded(ctx context.Context, instances []*models.Instance) {
	for _, instance := range instances {
		if !instance.PauseCrossSeeded {
			continue
		}

		if err := s.pauseCrossSeededForInstance(ctx, instance); err != nil {
			log.Error().Err(err).Int("instanceID", instance.ID).Str("instance", instance.Name).
				Msg("jobs: cross-seed pause failed")
		}
	}
}

func (s *Scheduler) pauseCrossSeededForInstance(ctx context.Context, instance *models.Instance) error {
	client, torrents, err := s.torrentsFor(ctx, instance)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	paused, err := crossseed.PauseDuplicates(ctx, instance, torrents, client, models.NewActionLogStore(tx), s.notifier)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if paused > 0 {
		log.Info().Int("instanceID", instance.ID).Int("paused", paused).Msg("jobs: paused cross-seeded torrents")
	}
	return nil
}

// detectOrphans builds one expected-path set across every instance with
// a path mapping, then scans each unique local root exactly once. A
// file claimed by any instance is never flagged while scanning another
// instance's shared mount.
func (s *Scheduler) detectOrphans(ctx context.Context, instances []*models.Instance) {
	var mapped, scanTargets []*models.Instance
	for _, instance := range instances {
		if !instance.HasPathMapping() {
			continue
		}
		mapped = append(mapped, instance)
		if instance.OrphanScanEnabled {
			scanTargets = append(scanTargets, instance)
		}
	}
	if len(scanTargets) == 0 {
		return
	}

	expected := make(map[string]struct{})
	for _, instance := range mapped {
		client, torrents, err := s.torrentsFor(ctx, instance)
		if err != nil {
			log.Warn().Err(err).Int("instanceID", instance.ID).Str("instance", instance.Name).
				Msg("jobs: skipping instance in expected-path build")
			continue
		}

		fallback := pathutil.Canonicalize(instance.LocalRoot)
		for path := range orphanscan.BuildExpectedPaths(ctx, instance.ID, torrents, client, instance.RemoteRoot, instance.LocalRoot, fallback) {
			expected[path] = struct{}{}
		}
	}
	if len(expected) == 0 {
		return
	}

	inodes := orphanscan.CollectInodes(expected)

	// Instances sharing a canonical root scan it once; findings go to
	// the first instance of the group.
	groups := make(map[string][]*models.Instance)
	var roots []string
	for _, instance := range scanTargets {
		root := pathutil.Canonicalize(instance.LocalRoot)
		if _, seen := groups[root]; !seen {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], instance)
	}

	for _, root := range roots {
		owner := groups[root][0]
		if err := s.scanRoot(ctx, root, owner, expected, inodes); err != nil {
			log.Error().Err(err).Str("root", root).Int("instanceID", owner.ID).
				Msg("jobs: orphan scan failed")
		}
	}
}

func (s *Scheduler) scanRoot(ctx context.Context, root string, owner *models.Instance, expected map[string]struct{}, inodes orphanscan.InodeSet) error {
	orphans, err := orphanscan.FindOrphanedFiles(ctx, root, expected, inodes, owner.OrphanMinAgeDays, owner.IgnorePatterns())
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	store := models.NewOrphanedFileStore(tx)
	logs := models.NewActionLogStore(tx)

	paths := make([]string, 0, len(orphans))
	for _, orphan := range orphans {
		if err := store.Upsert(ctx, owner.ID, orphan.Path, orphan.Size, orphan.ModTime); err != nil {
			return err
		}
		if err := logs.Create(ctx, owner.ID, "Orphaned file detected", orphan.Path); err != nil {
			return err
		}
		paths = append(paths, orphan.Path)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info().Str("root", root).Int("instanceID", owner.ID).Int("orphans", len(orphans)).
		Msg("jobs: orphaned files detected")

	s.notifier.Send(notifications.OrphanReport(root, owner.OrphanMinAgeDays, owner.Name, paths))
	return nil
}
