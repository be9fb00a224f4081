// Package biz implements the compliance analysis business logic: document
// segmentation, the two-phase classification and analysis pipeline, rule
// catalog access, result caching and session history.
package biz
