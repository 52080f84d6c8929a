// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"time"

	"github.com/josephlim94/janus-client-go/protocol"
)

// keepalive sends a keepalive request every KeepaliveInterval until cancelled. Replies are not awaited.
func (s *Session) keepalive(ctx context.Context, id uint64, done chan struct{}) {
	defer close(done)

	logger := s.log().WithField("interval", s.opts.KeepaliveInterval)
	logger.Debug("Starting keepalive")

	ticker := time.NewTicker(s.opts.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Stopping keepalive")
			return

		case <-ticker.C:
			if s.Expired() {
				logger.Info("Session expired, stopping keepalive")
				return
			}

			tx, err := s.transport.Send(ctx, protocol.NewRequest(protocol.KindKeepalive), id, 0)
			if err != nil {
				if ctx.Err() == nil {
					logger.WithError(err).Error("Sending keepalive failed, stopping keepalive")
				}
				return
			}
			_ = tx.Close()
		}
	}
}
