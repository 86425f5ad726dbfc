// Package transport carries command and data records between controllers and
// a device mailbox. Every link moves whole fixed-size records: a 4-byte
// command in, a 17-byte data record out. There is no other framing.
package transport
