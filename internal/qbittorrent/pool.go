// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/leo-stotch/qpanel/internal/models"
)

const (
	// connectFailureBackoff delays reconnect attempts after an
	// ordinary connection failure.
	connectFailureBackoff = 30 * time.Second

	// banFailureBackoff delays reconnects after the instance reported
	// banned or rate-limited credentials, so retries don't extend the ban.
	banFailureBackoff = 5 * time.Minute

	healthCheckInterval = 2 * time.Minute
	connectTimeout      = 30 * time.Second
)

// ErrBackoff is returned while a recently failed instance is cooling down.
var ErrBackoff = errors.New("instance connection is cooling down after failure")

type failureRecord struct {
	at      time.Time
	backoff time.Duration
}

// ClientPool caches one authenticated client per instance. Concurrent
// callers requesting the same instance share a single connection
// attempt.
type ClientPool struct {
	instanceStore *models.InstanceStore

	mu       sync.RWMutex
	clients  map[int]*Client
	failures map[int]failureRecord

	connectGroup singleflight.Group
}

func NewClientPool(instanceStore *models.InstanceStore) *ClientPool {
	return &ClientPool{
		instanceStore: instanceStore,
		clients:       make(map[int]*Client),
		failures:      make(map[int]failureRecord),
	}
}

// GetClient returns a healthy client for the instance, connecting if
// necessary.
func (p *ClientPool) GetClient(ctx context.Context, instanceID int) (*Client, error) {
	p.mu.RLock()
	client, ok := p.clients[instanceID]
	failure, failed := p.failures[instanceID]
	p.mu.RUnlock()

	if ok {
		if time.Since(client.GetLastHealthCheck()) < healthCheckInterval {
			return client, nil
		}

		checkCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := client.HealthCheck(checkCtx)
		cancel()
		if err == nil {
			return client, nil
		}

		log.Warn().Err(err).Int("instanceID", instanceID).Msg("pool: cached client unhealthy, reconnecting")
		p.removeClient(instanceID)
	}

	if failed && time.Since(failure.at) < failure.backoff {
		return nil, fmt.Errorf("%w: retry in %s", ErrBackoff,
			(failure.backoff - time.Since(failure.at)).Round(time.Second))
	}

	result, err, _ := p.connectGroup.Do(fmt.Sprintf("connect-%d", instanceID), func() (any, error) {
		return p.connect(ctx, instanceID)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Client), nil
}

func (p *ClientPool) connect(ctx context.Context, instanceID int) (*Client, error) {
	instance, err := p.instanceStore.Get(ctx, instanceID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load instance")
	}

	password, err := p.instanceStore.DecryptPassword(instance)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt instance password")
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := NewClient(connectCtx, instanceID, instance.Host, instance.Username, password)
	if err != nil {
		p.recordFailure(instanceID, err)
		return nil, err
	}

	p.mu.Lock()
	p.clients[instanceID] = client
	delete(p.failures, instanceID)
	p.mu.Unlock()

	return client, nil
}

func (p *ClientPool) recordFailure(instanceID int, err error) {
	backoff := connectFailureBackoff
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "banned") || strings.Contains(msg, "too many") {
		backoff = banFailureBackoff
	}

	p.mu.Lock()
	p.failures[instanceID] = failureRecord{at: time.Now(), backoff: backoff}
	p.mu.Unlock()
}

func (p *ClientPool) removeClient(instanceID int) {
	p.mu.Lock()
	delete(p.clients, instanceID)
	p.mu.Unlock()
}

// InvalidateClient drops the cached client, forcing a reconnect on the
// next GetClient. Used after instance credentials change.
func (p *ClientPool) InvalidateClient(instanceID int) {
	p.mu.Lock()
	delete(p.clients, instanceID)
	delete(p.failures, instanceID)
	p.mu.Unlock()
}
