// Client-side reconciler which keeps a local View consistent with the
// authoritative roster over snapshot fetches plus the live elimination stream.

package viewer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PsychoGas/squidElim/internal/entity"
	"github.com/PsychoGas/squidElim/pkg/log"
)

// Reconciler fetches the roster snapshot and consumes the elimination event
// stream of one squidElim server, merging both into a single View.
type Reconciler struct {
	baseURL       string
	client        *http.Client
	view          *View
	retryInterval time.Duration
	logger        log.Logger
	snapshotting  int32
}

func NewReconciler(baseURL string, logger log.Logger) *Reconciler {
	return &Reconciler{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{},
		view:          NewView(),
		retryInterval: 2 * time.Second,
		logger:        logger,
	}
}

// View returns the reconciled local state.
func (r *Reconciler) View() *View {
	return r.view
}

// Run keeps the view synchronized until ctx is cancelled.
// The snapshot fetch and the stream run concurrently; their relative order
// doesn't matter because the View merge is idempotent. A dropped stream is a
// transient condition: the reconciler reconnects and refetches the snapshot
// to cover any events missed during the gap.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		go r.fetchSnapshotWithRetry(ctx)

		streamerr := r.consumeStream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn().Err(streamerr).Msg("Elimination stream dropped, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryInterval):
		}
	}
}

// Keeps retrying the roster snapshot until it lands or ctx is cancelled.
// At most one retry loop runs at a time; reconnect iterations during a long
// outage must not stack additional ones on top.
func (r *Reconciler) fetchSnapshotWithRetry(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&r.snapshotting, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&r.snapshotting, 0)
	for {
		fetcherr := r.fetchSnapshot(ctx)
		if fetcherr == nil || ctx.Err() != nil {
			return
		}
		r.logger.Warn().Err(fetcherr).Msg("Roster snapshot fetch failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.retryInterval):
		}
	}
}

// Fetches the full roster once and merges it into the view.
func (r *Reconciler) fetchSnapshot(ctx context.Context) error {
	req, reqerr := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/players", nil)
	if reqerr != nil {
		return reqerr
	}
	resp, geterr := r.client.Do(req)
	if geterr != nil {
		return geterr
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("roster snapshot request returned status %d", resp.StatusCode)
	}

	var roster []entity.Player
	if mrsherr := json.NewDecoder(resp.Body).Decode(&roster); mrsherr != nil {
		return mrsherr
	}
	r.view.ApplySnapshot(roster)
	return nil
}

// Opens the elimination stream and merges every received event into the view.
// Blocks until the stream ends or ctx is cancelled.
func (r *Reconciler) consumeStream(ctx context.Context) error {
	req, reqerr := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/eliminations", nil)
	if reqerr != nil {
		return reqerr
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, geterr := r.client.Do(req)
	if geterr != nil {
		return geterr
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("elimination stream request returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		// Events arrive as "data: {json}" lines followed by a blank terminator
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		event := entity.EliminationEvent{}
		if mrsherr := json.Unmarshal([]byte(payload), &event); mrsherr != nil {
			r.logger.Warn().Err(mrsherr).Msgf("Skipping malformed elimination event: %s", payload)
			continue
		}
		r.view.ApplyEvent(event, time.Now().UnixMilli())
	}
	return scanner.Err()
}
