package property

import "time"

// Record is the state kept for one property.
type Record struct {
	Value   float64
	Default float64
	Enabled bool

	// Pending is set while a local edit has not been confirmed by the daemon.
	Pending    bool
	LastSent   float64
	LastSentAt time.Time
	HasSent    bool

	// Confirmed is the last value the daemon reported or acknowledged.
	Confirmed      float64
	ConfirmedKnown bool

	// SoftFail marks a control whose last write could not be delivered.
	SoftFail bool
}

// Defaults holds the reset value and enabled flag of every property.
type Defaults struct {
	Values  [Count]float64
	Enabled [Count]bool
}

// StandardDefaults returns the built-in defaults: 6500 K, full
// brightness, gamma 1.0, not inverted, everything enabled.
func StandardDefaults() Defaults {
	return Defaults{
		Values:  [Count]float64{Temperature: 6500, Brightness: 1, Gamma: 1, Inverted: 0},
		Enabled: [Count]bool{true, true, true, true},
	}
}

// Store holds the last-known value of each property. It performs no I/O and no
// locking: it must only be touched by the goroutine that owns it.
type Store struct {
	records [Count]Record
}

// NewStore creates a store whose current values start at the defaults.
func NewStore(d Defaults) *Store {
	s := &Store{}
	for _, id := range All {
		dom := DomainOf(id)
		def := dom.Clamp(d.Values[id])
		s.records[id] = Record{
			Value:   def,
			Default: def,
			Enabled: d.Enabled[id],
		}
	}
	return s
}

// Get returns the current value of id.
func (s *Store) Get(id ID) float64 {
	if !id.Valid() {
		return 0
	}
	return s.records[id].Value
}

// Set stores v clamped to the domain of id and reports whether the stored
// value changed.
func (s *Store) Set(id ID, v float64) bool {
	if !id.Valid() {
		return false
	}
	v = DomainOf(id).Clamp(v)
	rec := &s.records[id]
	if rec.Value == v {
		return false
	}
	rec.Value = v
	return true
}

// Reset stores and returns the configured default of id.
func (s *Store) Reset(id ID) float64 {
	if !id.Valid() {
		return 0
	}
	rec := &s.records[id]
	rec.Value = rec.Default
	return rec.Default
}

// SetDefault replaces the reset value of id.
func (s *Store) SetDefault(id ID, v float64) {
	if !id.Valid() {
		return
	}
	s.records[id].Default = DomainOf(id).Clamp(v)
}

// SetEnabled toggles whether id is controllable.
func (s *Store) SetEnabled(id ID, enabled bool) {
	if !id.Valid() {
		return
	}
	s.records[id].Enabled = enabled
}

// Enabled reports whether id is controllable.
func (s *Store) Enabled(id ID) bool {
	return id.Valid() && s.records[id].Enabled
}

// Record returns a copy of the record for id.
func (s *Store) Record(id ID) Record {
	if !id.Valid() {
		return Record{}
	}
	return s.records[id]
}

// SetPending marks id as having an unconfirmed local edit.
func (s *Store) SetPending(id ID, pending bool) {
	if id.Valid() {
		s.records[id].Pending = pending
	}
}

// MarkSent records a value handed to the daemon.
func (s *Store) MarkSent(id ID, v float64, at time.Time) {
	if !id.Valid() {
		return
	}
	rec := &s.records[id]
	rec.LastSent = v
	rec.LastSentAt = at
	rec.HasSent = true
}

// Confirm records a value reported or acknowledged by the daemon.
func (s *Store) Confirm(id ID, v float64) {
	if !id.Valid() {
		return
	}
	rec := &s.records[id]
	rec.Confirmed = DomainOf(id).Clamp(v)
	rec.ConfirmedKnown = true
}

// SetSoftFail flags or clears the delivery failure indicator of id.
func (s *Store) SetSoftFail(id ID, failed bool) {
	if id.Valid() {
		s.records[id].SoftFail = failed
	}
}

// Snapshot returns a copy of every record.
func (s *Store) Snapshot() [Count]Record {
	return s.records
}
