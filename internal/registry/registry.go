// Package registry holds the current known state of receivers and tracked
// beacons. It owns every Receiver, Beacon, and Detection record exclusively:
// all read methods return copies, never references into internal maps.
//
// Iteration order is insertion order (sorted on document load) and survives
// removals. Query and ranking code depends on that stability for tie-breaks.
package registry

import (
	"sort"
	"sync"
)

// ReceiverView is a read-only copy of one receiver plus its id.
type ReceiverView struct {
	ID string
	Receiver
}

// DetectionView is a read-only copy of one detection plus the id of the
// receiver that made it.
type DetectionView struct {
	ReceiverID string
	Detection
}

// BeaconView is a read-only copy of one beacon. Detections are in registry
// iteration order.
type BeaconView struct {
	Address    string
	Name       string
	FirstSeen  int64
	Detections []DetectionView
}

type beaconState struct {
	Beacon
	order []string // receiver ids, insertion order
}

// Registry is the single mutable shared resource of the tracker. A RWMutex
// lets any number of readers run concurrently; writers (ingest merge, reaper
// sweep, reset) are additionally serialized by the engine so the
// load-merge-persist cycle never loses updates.
type Registry struct {
	mu          sync.RWMutex
	devices     map[string]*Receiver
	deviceOrder []string
	beacons     map[string]*beaconState
	beaconOrder []string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		devices: make(map[string]*Receiver),
		beacons: make(map[string]*beaconState),
	}
}

// NewFromDocument builds a Registry from a persisted document. Keys are
// iterated in sorted order so a reloaded registry behaves deterministically.
func NewFromDocument(doc Document) *Registry {
	r := New()
	for _, id := range sortedKeys(doc.Devices) {
		dev := doc.Devices[id]
		r.devices[id] = &dev
		r.deviceOrder = append(r.deviceOrder, id)
	}
	for _, addr := range sortedKeys(doc.Beacons) {
		b := doc.Beacons[addr]
		state := &beaconState{Beacon: Beacon{
			Name:       b.Name,
			FirstSeen:  b.FirstSeen,
			Detections: make(map[string]Detection, len(b.Detections)),
		}}
		for _, rid := range sortedKeys(b.Detections) {
			state.Detections[rid] = b.Detections[rid]
			state.order = append(state.order, rid)
		}
		r.beacons[addr] = state
		r.beaconOrder = append(r.beaconOrder, addr)
	}
	return r
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UpsertReceiver creates or refreshes a receiver record. Empty name/kind
// keep whatever is already stored; zero batch fields default to 1. Returns
// a copy of the stored record so callers see the resolved attributes.
func (r *Registry) UpsertReceiver(id, name, kind string, batch, totalBatches int, now int64) Receiver {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[id]
	if !ok {
		dev = &Receiver{}
		r.devices[id] = dev
		r.deviceOrder = append(r.deviceOrder, id)
	}
	if name != "" {
		dev.Name = name
	}
	if kind != "" {
		dev.Kind = kind
	}
	if batch > 0 {
		dev.Batch = batch
	} else if dev.Batch == 0 {
		dev.Batch = 1
	}
	if totalBatches > 0 {
		dev.TotalBatches = totalBatches
	} else if dev.TotalBatches == 0 {
		dev.TotalBatches = 1
	}
	dev.Update = now
	return *dev
}

// UpsertBeacon creates a beacon on first sighting (first_seen = now) or
// refreshes an existing one. A supplied name always overwrites; identity is
// the address, names may change or be reassigned. first_seen is never
// touched after creation.
func (r *Registry) UpsertBeacon(address, name string, now int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.beacons[address]
	if !ok {
		b = &beaconState{Beacon: Beacon{
			FirstSeen:  now,
			Detections: make(map[string]Detection),
		}}
		r.beacons[address] = b
		r.beaconOrder = append(r.beaconOrder, address)
	}
	if name != "" {
		b.Name = name
	}
}

// UpsertDetection stores one receiver's latest observation of one beacon,
// overwriting any previous detection for the same (beacon, receiver) pair.
// The beacon must already exist (the merger upserts it first); a detection
// for an unknown beacon is dropped rather than creating a half-formed record.
func (r *Registry) UpsertDetection(address, receiverID string, d Detection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.beacons[address]
	if !ok {
		return
	}
	if _, seen := b.Detections[receiverID]; !seen {
		b.order = append(b.order, receiverID)
	}
	b.Detections[receiverID] = d
}

// Receivers returns copies of all receivers in iteration order.
func (r *Registry) Receivers() []ReceiverView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ReceiverView, 0, len(r.deviceOrder))
	for _, id := range r.deviceOrder {
		out = append(out, ReceiverView{ID: id, Receiver: *r.devices[id]})
	}
	return out
}

// Beacons returns copies of all beacons in iteration order.
func (r *Registry) Beacons() []BeaconView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BeaconView, 0, len(r.beaconOrder))
	for _, addr := range r.beaconOrder {
		out = append(out, r.viewLocked(addr))
	}
	return out
}

// BeaconByAddress returns a copy of one beacon by exact address.
func (r *Registry) BeaconByAddress(address string) (BeaconView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.beacons[address]; !ok {
		return BeaconView{}, false
	}
	return r.viewLocked(address), true
}

func (r *Registry) viewLocked(address string) BeaconView {
	b := r.beacons[address]
	view := BeaconView{
		Address:    address,
		Name:       b.Name,
		FirstSeen:  b.FirstSeen,
		Detections: make([]DetectionView, 0, len(b.order)),
	}
	for _, rid := range b.order {
		view.Detections = append(view.Detections, DetectionView{
			ReceiverID: rid,
			Detection:  b.Detections[rid],
		})
	}
	return view
}

// RemoveReceiver deletes a receiver record. Detections made by that receiver
// are left to the reaper; they age out on their own schedule.
func (r *Registry) RemoveReceiver(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; !ok {
		return false
	}
	delete(r.devices, id)
	r.deviceOrder = removeString(r.deviceOrder, id)
	return true
}

// RemoveDetection deletes the detection for one (beacon, receiver) pair.
func (r *Registry) RemoveDetection(address, receiverID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.beacons[address]
	if !ok {
		return false
	}
	if _, ok := b.Detections[receiverID]; !ok {
		return false
	}
	delete(b.Detections, receiverID)
	b.order = removeString(b.order, receiverID)
	return true
}

// RemoveBeaconIfEmpty deletes a beacon that has no detections left.
func (r *Registry) RemoveBeaconIfEmpty(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.beacons[address]
	if !ok || len(b.Detections) > 0 {
		return false
	}
	delete(r.beacons, address)
	r.beaconOrder = removeString(r.beaconOrder, address)
	return true
}

// Replace swaps the whole registry for the given document. Used by reset
// and nothing else; startup load goes through NewFromDocument.
func (r *Registry) Replace(doc Document) {
	fresh := NewFromDocument(doc)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = fresh.devices
	r.deviceOrder = fresh.deviceOrder
	r.beacons = fresh.beacons
	r.beaconOrder = fresh.beaconOrder
}

// Document returns a deep copy of the registry in its persisted shape.
func (r *Registry) Document() Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := Document{
		Devices: make(map[string]Receiver, len(r.devices)),
		Beacons: make(map[string]Beacon, len(r.beacons)),
	}
	for id, dev := range r.devices {
		doc.Devices[id] = *dev
	}
	for addr, b := range r.beacons {
		detections := make(map[string]Detection, len(b.Detections))
		for rid, d := range b.Detections {
			detections[rid] = d
		}
		doc.Beacons[addr] = Beacon{
			Name:       b.Name,
			FirstSeen:  b.FirstSeen,
			Detections: detections,
		}
	}
	return doc
}

func removeString(s []string, v string) []string {
	for i, cur := range s {
		if cur == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
