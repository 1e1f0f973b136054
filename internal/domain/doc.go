// Package domain holds the QoS entities, value objects, and typed errors
// shared by every layer. It has no dependencies on persistence or transport.
package domain
