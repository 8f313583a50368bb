package plan

import (
	"context"
	"encoding/json"
	"sync"
)

// Watcher follows one plan's resource. It holds a server-side
// subscription, forwards matching change notifications to its callback,
// and re-subscribes after each session recovery so the subscription
// survives session loss.
type Watcher struct {
	service *Service
	uri     string

	offNotify   func()
	offRecovery func()
	stopOnce    sync.Once
}

// Watch subscribes to a plan's resource and invokes fn for every change
// notification matching it. The callback runs on the notification stream's
// goroutine and must not block.
func (s *Service) Watch(ctx context.Context, id string, fn func()) (*Watcher, error) {
	uri := URI(id)
	if err := s.client.SubscribeResource(ctx, uri); err != nil {
		return nil, err
	}

	w := &Watcher{service: s, uri: uri}
	w.offNotify = s.client.OnNotification(ChangedMethod, func(params json.RawMessage) {
		var p struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		if p.URI == uri {
			fn()
		}
	})
	w.offRecovery = s.client.OnRecovery(func(ctx context.Context) error {
		// The recovered session has no subscriptions; re-establish ours
		return s.client.SubscribeResource(ctx, uri)
	})

	s.log.Debug("watching plan", "uri", uri)
	return w, nil
}

// Stop unregisters the watcher and drops the server-side subscription.
// Safe to call more than once.
func (w *Watcher) Stop(ctx context.Context) error {
	var err error
	w.stopOnce.Do(func() {
		w.offNotify()
		w.offRecovery()
		err = w.service.client.UnsubscribeResource(ctx, w.uri)
	})
	return err
}
