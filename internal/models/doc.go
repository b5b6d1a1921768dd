// Package models defines the core domain models shared by the local replica
// and the remote service.
//
// # Models
//
//   - Group: a namespace of points, resolved by a human-shareable code
//   - Point: a geo-located entry belonging to a group
//   - Setting: small persisted key/value pairs (e.g. last-used group code)
//
// For the MVP there are no user accounts: anyone holding a group code can
// read and write that group's points.
//
// # Design Principles
//
// 1. **One model, both sides**: the same structs cross the wire and land in
// both the device-local replica and the server store; JSON tags are the wire
// contract.
// 2. **Avoid circular references**: Point.GroupID is an ID string, not a
// pointer; the stores do not enforce referential integrity.
// 3. **Sync status is local state**: the server always reports "synced";
// only the device replica ever holds "pending".
package models
