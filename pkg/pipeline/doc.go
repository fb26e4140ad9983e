// Package pipeline runs the three archive steps for one profile: download,
// URL extraction and media compression.
//
// A download that ends early on a soft error still gets post-processed and
// is reported as OutcomePartial. A download that fails outright skips
// post-processing. Post-processing errors are reported once, as
// OutcomePostProcessFailed.
package pipeline
