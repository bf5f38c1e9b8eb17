/*
Package events decodes the status feed published by the sync daemon.

The daemon pushes text messages of the form

	{"events": [{"kind": "upload-started", "folder": "Documents", "relpath": "a.txt"}, ...]}

Each element of the `events` array is decoded into exactly one Event
variant. The set of variants is closed: a record whose kind isn't known is
reported as an UnknownKindError, and a record that can't be decoded as a
MalformedEventError. Neither stops the remaining records in the message from
being decoded.
*/
package events
