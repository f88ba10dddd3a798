// Package control implements the device-mutation surface.
//
// Every mutation in the system flows through the Controller: it resolves
// targets (exact ID or room/type filter), computes a candidate state and
// property set via an explicit transition function per device type, and
// commits changes through the store with an audit event and a change
// signal. Actions incompatible with a device's type are silent per-device
// no-ops, and a candidate identical to the current record produces no
// write at all, so repeating a request is free.
package control
