package oilfox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// adoptTimeout bounds persisting an adopted device.
const adoptTimeout = 5 * time.Second

// DiscoveryResult describes a device found in the account that no handler
// claims yet.
type DiscoveryResult struct {
	ThingID                string            `json:"thing_id"`
	BridgeID               string            `json:"bridge_id"`
	Label                  string            `json:"label"`
	Properties             map[string]string `json:"properties"`
	RepresentationProperty string            `json:"representation_property"`
	DiscoveredAt           time.Time         `json:"discovered_at"`
}

// HWID returns the hwid property.
func (r DiscoveryResult) HWID() string {
	return r.Properties[PropertyHWID]
}

// NewDiscoveryResult builds the result announced for hwid.
func NewDiscoveryResult(bridgeID, hwid string, at time.Time) DiscoveryResult {
	return DiscoveryResult{
		ThingID:                ThingID(bridgeID, hwid),
		BridgeID:               bridgeID,
		Label:                  "OilFox " + hwid,
		Properties:             map[string]string{PropertyHWID: hwid},
		RepresentationProperty: PropertyHWID,
		DiscoveredAt:           at.UTC(),
	}
}

// DiscoverySink receives discovery results.
type DiscoverySink interface {
	Discovered(result DiscoveryResult)
	Withdrawn(bridgeID, hwid string)
}

// DiscoveryListener turns bridge announcements into discovery results.
// It claims no hwid, so it sees every unclaimed device.
type DiscoveryListener struct {
	sink DiscoverySink
	now  func() time.Time
}

// NewDiscoveryListener creates a listener feeding sink.
func NewDiscoveryListener(sink DiscoverySink) *DiscoveryListener {
	return &DiscoveryListener{sink: sink, now: time.Now}
}

// HWID returns "" so the registry does not index the listener.
func (l *DiscoveryListener) HWID() string { return "" }

// OnAdded reports a new device.
func (l *DiscoveryListener) OnAdded(bridgeID, hwid string) error {
	l.sink.Discovered(NewDiscoveryResult(bridgeID, hwid, l.now()))
	return nil
}

// OnRemoved withdraws a reported device.
func (l *DiscoveryListener) OnRemoved(bridgeID, hwid string) error {
	l.sink.Withdrawn(bridgeID, hwid)
	return nil
}

// OnRefresh is a no-op for discovery.
func (l *DiscoveryListener) OnRefresh(context.Context, []Device) error { return nil }

// Adopter creates device handlers. Implemented by *Bridge.
type Adopter interface {
	AddDevice(dev DeviceConfig) (*DeviceHandler, error)
}

// AdoptionStore persists adopted devices so they survive a restart.
type AdoptionStore interface {
	SaveDevice(ctx context.Context, dev DeviceConfig) error
}

// Publisher publishes MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// InboxOptions configures an Inbox.
type InboxOptions struct {
	// Adopter creates handlers for approved devices.
	Adopter Adopter

	// Store persists adopted devices. Optional.
	Store AdoptionStore

	// Publisher announces results on MQTT. Optional.
	Publisher Publisher

	// AutoAdopt adopts every result as it arrives.
	AutoAdopt bool

	Logger Logger
}

// Inbox collects discovery results until they are approved.
//
// Thread Safety: All methods are safe for concurrent use.
type Inbox struct {
	adopter   Adopter
	store     AdoptionStore
	publisher Publisher
	autoAdopt bool
	logger    Logger

	mu      sync.Mutex
	results []DiscoveryResult
}

// NewInbox creates an empty inbox.
func NewInbox(opts InboxOptions) *Inbox {
	return &Inbox{
		adopter:   opts.Adopter,
		store:     opts.Store,
		publisher: opts.Publisher,
		autoAdopt: opts.AutoAdopt,
		logger:    opts.Logger,
	}
}

// Discovered records a result, or adopts it right away when auto-adopt is on.
func (i *Inbox) Discovered(result DiscoveryResult) {
	if i.autoAdopt && i.adopter != nil {
		if _, err := i.adopt(result); err != nil {
			i.logError("auto-adopt failed", err, result.HWID())
		} else {
			return
		}
	}

	i.mu.Lock()
	replaced := false
	for n, r := range i.results {
		if r.HWID() == result.HWID() {
			i.results[n] = result
			replaced = true
			break
		}
	}
	if !replaced {
		i.results = append(i.results, result)
	}
	i.mu.Unlock()

	i.announce(result)
	i.logInfo("device discovered", "hwid", result.HWID(), "thing", result.ThingID)
}

// Withdrawn drops the result for hwid.
func (i *Inbox) Withdrawn(_, hwid string) {
	if _, ok := i.take(hwid); ok {
		i.withdraw(hwid)
		i.logInfo("discovery withdrawn", "hwid", hwid)
	}
}

// Results returns the pending results in arrival order.
func (i *Inbox) Results() []DiscoveryResult {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]DiscoveryResult, len(i.results))
	copy(out, i.results)
	return out
}

// Approve adopts the pending result for hwid.
//
// Returns:
//   - *DeviceHandler: The new handler
//   - error: ErrUnknownDevice if nothing is pending for hwid, or the adoption error
func (i *Inbox) Approve(hwid string) (*DeviceHandler, error) {
	if i.adopter == nil {
		return nil, fmt.Errorf("%w: no adopter configured", ErrConfiguration)
	}

	result, ok := i.take(hwid)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not pending", ErrUnknownDevice, hwid)
	}

	h, err := i.adopt(result)
	if err != nil {
		i.mu.Lock()
		i.results = append(i.results, result)
		i.mu.Unlock()
		return nil, err
	}

	i.withdraw(hwid)
	return h, nil
}

func (i *Inbox) adopt(result DiscoveryResult) (*DeviceHandler, error) {
	dev := DeviceConfig{
		ID:   result.ThingID,
		HWID: result.HWID(),
		Name: result.Label,
	}

	h, err := i.adopter.AddDevice(dev)
	if err != nil {
		return nil, err
	}

	if i.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), adoptTimeout)
		defer cancel()
		if err := i.store.SaveDevice(ctx, dev); err != nil {
			i.logError("failed to persist adopted device", err, dev.HWID)
		}
	}

	i.logInfo("device adopted", "hwid", dev.HWID, "thing", dev.ID)
	return h, nil
}

func (i *Inbox) take(hwid string) (DiscoveryResult, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for n, r := range i.results {
		if r.HWID() == hwid {
			i.results = append(i.results[:n:n], i.results[n+1:]...)
			return r, true
		}
	}
	return DiscoveryResult{}, false
}

func (i *Inbox) announce(result DiscoveryResult) {
	if i.publisher == nil {
		return
	}
	payload, err := json.Marshal(NewDiscoveryMessage(result))
	if err != nil {
		i.logError("failed to encode discovery message", err, result.HWID())
		return
	}
	if err := i.publisher.Publish(DiscoveryTopic(result.HWID()), payload, 1, true); err != nil {
		i.logError("failed to publish discovery", err, result.HWID())
	}
}

// withdraw clears the retained announcement.
func (i *Inbox) withdraw(hwid string) {
	if i.publisher == nil {
		return
	}
	if err := i.publisher.Publish(DiscoveryTopic(hwid), nil, 1, true); err != nil {
		i.logError("failed to clear discovery", err, hwid)
	}
}

func (i *Inbox) logInfo(msg string, keysAndValues ...any) {
	if i.logger != nil {
		i.logger.Info(msg, keysAndValues...)
	}
}

func (i *Inbox) logError(msg string, err error, hwid string) {
	if i.logger != nil {
		i.logger.Error(msg, "error", err, "hwid", hwid)
	}
}
