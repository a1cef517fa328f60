// Package ui implements the terminal-facing collaborators of the request pipeline.
//
// A [Navigator] keeps an in-process history stack whose back and forward moves are gated by the
// session (see [Gate]); the pipeline's interceptor drives it with [Navigator.Navigate].
// A [Notifier] prints error toasts styled with lipgloss and drops bursts beyond a configured rate.
package ui
