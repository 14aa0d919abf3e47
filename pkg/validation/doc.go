// Package validation gates untrusted caller input before any backend call is attempted.
// Sanitization bounds length and strips incidental whitespace, it is not a security filter.
package validation
