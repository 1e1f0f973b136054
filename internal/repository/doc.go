// Package repository defines the persistence interface for the QoS data
// model. Concrete implementations live in subpackages.
package repository
