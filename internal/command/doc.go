// Package command dispatches device commands and keeps their audit log.
//
// A dispatch resolves the device by id or case-insensitive name, writes a
// CommandLog at "pending", publishes {"action": ..., ...payload} to the
// device's command topic and moves the log to "sent" once the broker has
// accepted the publish. A missing command topic or a dropped broker
// connection moves it to "failed" with the error text instead. Status
// updates are conditional on the current status, so a log only ever moves
// forward.
//
// "sent" means the broker accepted the message. Devices do not acknowledge
// commands end to end.
package command
