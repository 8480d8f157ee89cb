// Package delivery turns a fired reminder trigger into a message.
//
// The scheduler stores job-data as a flat string map. This package owns that
// format: Encode/Decode convert between the map and a typed Intent (text or
// poll), and Job is the scheduler handler that decodes the intent and hands
// it to the sender.
package delivery
