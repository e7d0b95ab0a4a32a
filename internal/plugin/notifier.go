package plugin

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/ayusman/memora/internal/handoff"
)

// Notifier wraps a handoff bridge and forwards every successful payload to
// the plugins subscribed to EventRecognized. Plugin failures are logged and
// never change the bridge result.
type Notifier struct {
	next     handoff.Bridge
	manager  *Manager
	executor *Executor
}

// NewNotifier creates a Notifier around next.
func NewNotifier(next handoff.Bridge, manager *Manager, executor *Executor) *Notifier {
	return &Notifier{next: next, manager: manager, executor: executor}
}

// OnIdentityRecognized runs the wrapped bridge, then the plugins.
func (n *Notifier) OnIdentityRecognized(ctx context.Context, identity string) (*handoff.Payload, error) {
	payload, err := n.next.OnIdentityRecognized(ctx, identity)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("plugin notify: encode payload for %s: %v", identity, err)
		return payload, nil
	}
	n.Notify(ctx, &Request{Event: EventRecognized, Identity: identity, Payload: data})
	return payload, nil
}

// Notify runs every plugin subscribed to req.Event concurrently and waits
// for all of them. It returns the number of plugins that reported success.
func (n *Notifier) Notify(ctx context.Context, req *Request) int {
	plugins := n.manager.Subscribed(req.Event)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, p := range plugins {
		wg.Add(1)
		go func(p *Plugin) {
			defer wg.Done()

			r := *req
			r.Config = p.Manifest.Config
			resp, err := n.executor.Execute(ctx, p, &r)
			switch {
			case err != nil:
				log.Printf("plugin %s: %v", p.Manifest.Name, err)
			case !resp.Success:
				log.Printf("plugin %s reported failure: %s", p.Manifest.Name, resp.Error)
			default:
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return succeeded
}
