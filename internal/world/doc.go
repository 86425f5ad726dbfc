// Package world owns the shared spatial state entities live in: the layered
// occupancy grid that entities stamp their footprints into and query for
// collisions, and the body frames that relate an entity's local pose to the
// world frame.
//
// The grid is an injected resource. Entities only see the Occupancy
// interface so tests can substitute their own implementation.
package world
