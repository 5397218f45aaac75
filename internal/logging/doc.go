// Package logging provides slog construction helpers and the attribute
// vocabulary shared across pipeline components.
package logging
