// Package position simulates a differential-drive robot base (a "position
// device") living in a world occupancy grid.
//
// Each update cycle the device reads the latest velocity command from its
// port, erases its footprint from the grid, integrates the command into a
// candidate pose, accepts the pose only when the grid is free under the
// robot's shape, redraws its footprint and publishes an odometry record back
// through the port.
//
// Odometry is dead reckoning: it integrates the commanded velocity whether or
// not the true pose was allowed to move.
//
// Wire records are fixed size and big-endian:
//
//	command (4 bytes):  speed int16 mm/s, turnrate int16 deg/s
//	data   (17 bytes):  xpos int32 mm, ypos int32 mm, theta uint16 deg,
//	                    speed uint16 mm/s, turnrate int16 deg/s,
//	                    compass uint16 deg, stalls uint8
package position
