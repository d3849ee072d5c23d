// Copyright (c) 2025, leo-stotch and the qpanel contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	defaultQueueSize = 100
	defaultWorkers   = 2

	sendAttempts = 3
	sendDelay    = 2 * time.Second

	maxMessageLength = 4000
)

// Service fans messages out to every configured shoutrrr URL. Sends are
// queued and delivered by background workers so callers never block on a
// slow provider.
type Service struct {
	urls      []string
	queue     chan string
	startOnce sync.Once
}

func NewService(urls []string) *Service {
	cleaned := make([]string, 0, len(urls))
	for _, raw := range urls {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	return &Service{
		urls:  cleaned,
		queue: make(chan string, defaultQueueSize),
	}
}

// ValidateURL reports whether shoutrrr recognizes the given service URL.
func ValidateURL(rawURL string) error {
	_, err := router.New(nil, rawURL)
	return err
}

// Enabled reports whether at least one notification URL is configured.
func (s *Service) Enabled() bool {
	return s != nil && len(s.urls) > 0
}

// Start launches the delivery workers. Safe to call more than once.
func (s *Service) Start(ctx context.Context) {
	if s == nil || len(s.urls) == 0 {
		return
	}

	s.startOnce.Do(func() {
		for range defaultWorkers {
			go s.worker(ctx)
		}
	})
}

// Send queues a message for delivery. Messages are dropped when the queue
// is full rather than blocking the caller.
func (s *Service) Send(message string) {
	if s == nil || len(s.urls) == 0 {
		return
	}
	if strings.TrimSpace(message) == "" {
		return
	}

	select {
	case s.queue <- message:
	default:
		log.Warn().Msg("notifications: queue full, dropping message")
	}
}

// SendTest delivers a message synchronously, bypassing the queue.
func (s *Service) SendTest(ctx context.Context, message string) error {
	if s == nil || len(s.urls) == 0 {
		return errors.New("no notification URLs configured")
	}
	return s.deliver(ctx, message)
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.queue:
			if err := s.deliver(ctx, message); err != nil {
				log.Error().Err(err).Msg("notifications: delivery failed")
			}
		}
	}
}

func (s *Service) deliver(ctx context.Context, message string) error {
	trimmed := truncateMessage(message, maxMessageLength)

	var errs []error
	for _, url := range s.urls {
		if err := sendToURL(ctx, url, trimmed); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sendToURL(ctx context.Context, url, message string) error {
	sender, err := router.New(nil, url)
	if err != nil {
		return fmt.Errorf("invalid notification URL %q: %w", redactURL(url), err)
	}

	return retry.Do(
		func() error {
			results := sender.Send(message, &types.Params{})
			var errs []error
			for _, sendErr := range results {
				if sendErr != nil {
					errs = append(errs, sendErr)
				}
			}
			return errors.Join(errs...)
		},
		retry.Context(ctx),
		retry.Attempts(sendAttempts),
		retry.Delay(sendDelay),
		retry.LastErrorOnly(true),
	)
}

// redactURL strips everything after the scheme so credentials embedded in
// shoutrrr URLs never reach the logs.
func redactURL(url string) string {
	if idx := strings.Index(url, "://"); idx > 0 {
		return url[:idx] + "://..."
	}
	return "..."
}

func truncateMessage(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
