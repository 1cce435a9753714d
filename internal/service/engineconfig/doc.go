// Package engineconfig manages per-client engine thresholds.
//
// Stored documents are partial: any field missing from the stored JSON takes
// its documented default, and any invalid field is replaced with its default
// and reported back to the caller as a fallback. The service never deletes a
// config.
//
// Repository implementations live in repository/postgres/.
package engineconfig
