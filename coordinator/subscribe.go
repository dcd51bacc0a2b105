// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package coordinator

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/passsync/event"
)

type subscription struct {
	bus       *event.EventBus
	eventType event.EventType
	id        event.EventSubscriberId
}

// Subscribe runs the coordinator for loyalty events published on bus. Syncs
// run in the background, at most as many at once as the configured workers.
func (c *Coordinator) Subscribe(bus *event.EventBus) {
	c.subscribe(bus, event.CustomerCreatedEventType, func(ctx context.Context, data any) error {
		evt, ok := data.(event.CustomerCreatedEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T", data)
		}
		_, err := c.OnCustomerCreated(ctx, evt.CustomerID)
		return err
	})
	c.subscribe(bus, event.StampMutatedEventType, func(ctx context.Context, data any) error {
		evt, ok := data.(event.StampMutatedEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T", data)
		}
		c.OnStampMutated(ctx, evt.CustomerID, evt.PreviousCount)
		return nil
	})
	c.subscribe(bus, event.DesignUpdatedEventType, func(ctx context.Context, data any) error {
		evt, ok := data.(event.DesignUpdatedEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T", data)
		}
		c.OnDesignUpdated(ctx, evt.DesignID)
		return nil
	})
	c.subscribe(bus, event.DesignActivatedEventType, func(ctx context.Context, data any) error {
		evt, ok := data.(event.DesignActivatedEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T", data)
		}
		c.OnDesignActivated(ctx, evt.DesignID)
		return nil
	})
}

func (c *Coordinator) subscribe(
	bus *event.EventBus,
	eventType event.EventType,
	handler func(ctx context.Context, data any) error,
) {
	id := bus.SubscribeFunc(eventType, func(evt event.Event) {
		c.goAsync(func(ctx context.Context) {
			if err := handler(ctx, evt.Data); err != nil {
				c.logger.Error(
					"failed to handle event",
					"component", "coordinator",
					"type", eventType,
					"error", err,
				)
			}
		})
	})
	if id == 0 {
		return
	}
	c.asyncMutex.Lock()
	defer c.asyncMutex.Unlock()
	c.subs = append(c.subs, subscription{bus: bus, eventType: eventType, id: id})
}

func (c *Coordinator) unsubscribe() {
	c.asyncMutex.Lock()
	subs := c.subs
	c.subs = nil
	c.asyncMutex.Unlock()
	for _, sub := range subs {
		sub.bus.Unsubscribe(sub.eventType, sub.id)
	}
}

// goAsync runs fn on its own goroutine once a worker slot is free. It blocks
// the caller while all slots are taken.
func (c *Coordinator) goAsync(fn func(ctx context.Context)) {
	c.asyncMutex.Lock()
	if c.stopped {
		c.asyncMutex.Unlock()
		return
	}
	c.asyncWg.Add(1)
	c.asyncMutex.Unlock()
	select {
	case c.asyncSem <- struct{}{}:
	case <-c.ctx.Done():
		c.asyncWg.Done()
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error(
					fmt.Sprintf("event sync panic: %v", r),
					"component", "coordinator",
				)
			}
			<-c.asyncSem
			c.asyncWg.Done()
		}()
		fn(c.ctx)
	}()
}
