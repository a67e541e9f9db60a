// Package notify is the Notification Processor of spec §4.8: transient
// module-install/feature-enable subscriptions held in memory, persistent
// module-change subscriptions delegated to the Persistence Manager, and
// fan-out of all three event kinds to a Sender.
package notify

import (
	"sync"

	"github.com/confd-io/confd/internal/logger"
	"github.com/confd-io/confd/internal/persist"
	"github.com/confd-io/confd/internal/wire"
)

// Sender delivers one notification to a destination; internal/conn
// implements it over the transport's write path. Delivery failures are
// logged, not retried, and never remove the subscription (spec §4.8,
// Open Question (c)).
type Sender interface {
	Send(n *wire.Notification) error
}

// transientSub is one module-install or feature-enable subscription.
type transientSub struct {
	EventKind          wire.EventKind
	DestinationAddress string
	DestinationID      uint32
	Module             string // empty = all modules
}

// Processor holds the transient subscription vector and per-destination
// index, plus a handle to PM for persistent module-change subscriptions.
type Processor struct {
	mu sync.RWMutex

	transient []transientSub
	// destinationModules indexes, for each destination address, the set of
	// modules it has a live module-change subscription to (for bulk purge
	// on destination loss). Transient subscriptions are not tracked here;
	// UnsubscribeDestination walks both this index and the transient slice.
	destinationModules map[string]map[string]bool

	persist *persist.Manager
	sender  Sender
}

func NewProcessor(persist *persist.Manager, sender Sender) *Processor {
	return &Processor{
		destinationModules: make(map[string]map[string]bool),
		persist:            persist,
		sender:             sender,
	}
}

// Subscribe registers a new subscription. module-change subscriptions are
// written through to PM (persistent); the rest are appended to the
// transient vector.
func (p *Processor) Subscribe(eventKind wire.EventKind, module, destinationAddress string, destinationID uint32, xpath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if eventKind == wire.EventModuleChange {
		if err := p.persist.AddSubscription(module, persist.Subscription{
			DestinationAddress: destinationAddress,
			DestinationID:      destinationID,
			XPath:              xpath,
		}); err != nil {
			return err
		}
	} else {
		p.transient = append(p.transient, transientSub{
			EventKind: eventKind, DestinationAddress: destinationAddress,
			DestinationID: destinationID, Module: module,
		})
	}

	if p.destinationModules[destinationAddress] == nil {
		p.destinationModules[destinationAddress] = map[string]bool{}
	}
	if module != "" {
		p.destinationModules[destinationAddress][module] = true
	}
	return nil
}

// Unsubscribe removes one matching subscription.
func (p *Processor) Unsubscribe(eventKind wire.EventKind, module, destinationAddress string, destinationID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if eventKind == wire.EventModuleChange {
		return p.persist.RemoveSubscription(module, destinationAddress, destinationID)
	}
	out := p.transient[:0]
	for _, s := range p.transient {
		if s.EventKind == eventKind && s.DestinationAddress == destinationAddress && s.DestinationID == destinationID && s.Module == module {
			continue
		}
		out = append(out, s)
	}
	p.transient = out
	return nil
}

// ModuleInstallNotify fans out to every transient module-install
// subscription, in the order they were recorded (spec §5 ordering
// guarantee).
func (p *Processor) ModuleInstallNotify(module string) {
	p.fanoutTransient(wire.EventModuleInstall, module)
}

// FeatureEnableNotify fans out to every transient feature-enable
// subscription.
func (p *Processor) FeatureEnableNotify(module string) {
	p.fanoutTransient(wire.EventFeatureEnable, module)
}

func (p *Processor) fanoutTransient(kind wire.EventKind, module string) {
	p.mu.RLock()
	subs := make([]transientSub, len(p.transient))
	copy(subs, p.transient)
	p.mu.RUnlock()

	for _, s := range subs {
		if s.EventKind != kind {
			continue
		}
		if s.Module != "" && s.Module != module {
			continue
		}
		p.deliver(&wire.Notification{
			EventKind:          kind,
			DestinationAddress: s.DestinationAddress,
			DestinationID:      s.DestinationID,
			Module:             module,
		})
	}
}

// NotifyModuleChange implements datamgr.ChangeNotifier: it queries PM for
// module's persistent subscriptions and delivers to each, updating the
// destination-info index as it goes (not as a separate pass, per
// original_source/notification_processor.c).
func (p *Processor) NotifyModuleChange(module string) {
	subs, err := p.persist.GetSubscriptions(module)
	if err != nil {
		logger.Error("failed to load persistent subscriptions", "module", module, "error", err)
		return
	}

	p.mu.Lock()
	for _, s := range subs {
		if p.destinationModules[s.DestinationAddress] == nil {
			p.destinationModules[s.DestinationAddress] = map[string]bool{}
		}
		p.destinationModules[s.DestinationAddress][module] = true
	}
	p.mu.Unlock()

	for _, s := range subs {
		p.deliver(&wire.Notification{
			EventKind:          wire.EventModuleChange,
			DestinationAddress: s.DestinationAddress,
			DestinationID:      s.DestinationID,
			Module:             module,
			XPath:              s.XPath,
		})
	}
}

func (p *Processor) deliver(n *wire.Notification) {
	if p.sender == nil {
		return
	}
	if err := p.sender.Send(n); err != nil {
		logger.Warn("notification delivery failed", "destination", n.DestinationAddress, "event_kind", n.EventKind, "error", err)
	}
}

// UnsubscribeDestination purges every subscription (transient and
// persistent) owned by address, invoked by the Connection Manager when a
// subscriber connection closes (spec §8 scenario 6).
func (p *Processor) UnsubscribeDestination(address string) {
	p.mu.Lock()
	modules := p.destinationModules[address]
	delete(p.destinationModules, address)
	out := p.transient[:0]
	for _, s := range p.transient {
		if s.DestinationAddress != address {
			out = append(out, s)
		}
	}
	p.transient = out
	p.mu.Unlock()

	for module := range modules {
		if err := p.persist.RemoveSubscriptionsForDestination(module, address); err != nil {
			logger.Error("failed to purge subscriptions for destination", "destination", address, "module", module, "error", err)
		}
	}
}
