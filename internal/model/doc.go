// Package model defines the domain data shared across the service: jobs and
// their status state machine, metadata records with their formats, and
// playlist listings. Types carry json tags so handlers can encode them
// directly.
package model
