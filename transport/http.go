// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imroc/req/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/josephlim94/janus-client-go/protocol"
)

// httpBinding sends every request as a POST and feeds the response body back into the Transport. Events are fetched by
// one long-polling goroutine per session.
type httpBinding struct {
	baseURL string
	opts    Options
	client  *req.Client
	receive func(protocol.Message)

	connected atomic.Bool

	pollersMutex sync.Mutex
	pollers      map[uint64]*poller
}

// poller is one session's long-polling goroutine.
type poller struct {
	sessionID uint64
	cancel    context.CancelFunc
	done      chan struct{}
}

// stop cancels the poller's in-flight request and waits until the goroutine has returned.
func (p *poller) stop() {
	p.cancel()
	<-p.done
}

func newHTTPBinding(baseURL string, opts Options, receive func(protocol.Message)) *httpBinding {
	return &httpBinding{
		baseURL: baseURL,
		opts:    opts,
		client:  opts.HTTPClient,
		receive: receive,
		pollers: make(map[uint64]*poller),
	}
}

func (h *httpBinding) log() *log.Entry {
	return log.WithField("http", h.baseURL)
}

// endpoint builds {base}[/{session}[/{handle}]].
func (h *httpBinding) endpoint(sessionID, handleID uint64) string {
	url := h.baseURL
	if sessionID != 0 {
		url += "/" + strconv.FormatUint(sessionID, 10)
		if handleID != 0 {
			url += "/" + strconv.FormatUint(handleID, 10)
		}
	}
	return url
}

func (h *httpBinding) connect(context.Context) error {
	if h.client == nil {
		h.client = req.C().SetUserAgent("janus-client-go")
	}

	h.connected.Store(true)
	return nil
}

func (h *httpBinding) disconnect() error {
	h.connected.Store(false)

	h.pollersMutex.Lock()
	pollers := h.pollers
	h.pollers = make(map[uint64]*poller)
	h.pollersMutex.Unlock()

	var g errgroup.Group
	for _, p := range pollers {
		p := p
		g.Go(func() error {
			p.stop()
			h.log().WithField("session", p.sessionID).Debug("Stopped long poll on disconnect")
			return nil
		})
	}
	return g.Wait()
}

func (h *httpBinding) send(ctx context.Context, msg protocol.Message) error {
	sessionID, _ := msg.SessionID()
	handleID, _ := msg.Uint64(protocol.FieldHandleID)
	url := h.endpoint(sessionID, handleID)

	resp, err := h.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(msg).
		Post(url)
	if err != nil {
		return fmt.Errorf("%w: POST %s: %w", protocol.ErrTransport, url, err)
	}

	body, err := resp.ToBytes()
	if err != nil {
		return fmt.Errorf("%w: POST %s: reading body: %w", protocol.ErrTransport, url, err)
	}

	frames, err := protocol.DecodeFrames(body)
	if err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%w: POST %s: %s", protocol.ErrTransport, url, resp.Status)
		}
		return fmt.Errorf("%w: POST %s: %w", protocol.ErrTransport, url, err)
	}

	// The synchronous reply is the POST's body.
	for _, frame := range frames {
		h.receive(frame)
	}
	return nil
}

func (h *httpBinding) sessionCreated(sessionID uint64) {
	h.pollersMutex.Lock()
	defer h.pollersMutex.Unlock()

	if _, exists := h.pollers[sessionID]; exists {
		h.log().WithField("session", sessionID).Warn("Long poll for session is already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		sessionID: sessionID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	h.pollers[sessionID] = p

	go h.poll(ctx, p)
}

func (h *httpBinding) sessionDestroyed(sessionID uint64) error {
	h.pollersMutex.Lock()
	p, exists := h.pollers[sessionID]
	delete(h.pollers, sessionID)
	h.pollersMutex.Unlock()

	if !exists {
		h.log().WithField("session", sessionID).Warn("No long poll found for session")
		return nil
	}

	p.stop()
	return nil
}

// poll requests events for one session until cancelled or until the gateway fails.
func (h *httpBinding) poll(ctx context.Context, p *poller) {
	defer close(p.done)

	logger := h.log().WithField("session", p.sessionID)
	url := h.endpoint(p.sessionID, 0)

	logger.Debug("Starting long poll")

	for {
		r := h.client.R().
			SetContext(ctx).
			SetQueryParam("rid", strconv.FormatInt(time.Now().UnixMilli(), 10))
		if h.opts.APISecret != "" {
			r.SetQueryParam(protocol.FieldAPISecret, h.opts.APISecret)
		}
		if h.opts.Token != "" {
			r.SetQueryParam(protocol.FieldToken, h.opts.Token)
		}
		if h.opts.MaxEvents > 1 {
			r.SetQueryParam("maxev", strconv.Itoa(h.opts.MaxEvents))
		}

		resp, err := r.Get(url)
		if ctx.Err() != nil {
			logger.Debug("Long poll stopped")
			return
		} else if err != nil {
			logger.WithError(err).Error("Long poll request failed")
			return
		}

		body, err := resp.ToBytes()
		if err != nil {
			logger.WithError(err).Error("Reading long poll response failed")
			return
		}

		frames, err := protocol.DecodeFrames(body)
		if err != nil {
			logger.WithError(err).WithField("status", resp.Status).Error("Decoding long poll response failed")
			return
		}

		for _, frame := range frames {
			switch {
			case frame.Janus() == protocol.KindKeepalive:
				continue

			case frame.Janus() == protocol.KindError && frame.Transaction() == "":
				logger.WithError(protocol.ErrorFromMessage(frame)).Error("Long poll returned an error")
				return

			default:
				h.receive(frame)
			}
		}
	}
}

func (h *httpBinding) alive() bool {
	return h.connected.Load()
}

// info fetches {base}/info, which requires no session.
func (h *httpBinding) info(ctx context.Context) (protocol.Message, error) {
	url := h.baseURL + "/info"

	client := h.client
	if client == nil {
		client = req.C()
	}

	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", protocol.ErrTransport, url, err)
	}

	body, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: reading body: %w", protocol.ErrTransport, url, err)
	}

	msg, err := protocol.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", protocol.ErrTransport, url, err)
	}
	return msg, protocol.ErrorFromMessage(msg)
}
