// Package resolver serves stored images. Given a record path and an
// optional variant name it returns the bytes, content type and cache
// headers. A missing variant degrades to the nearest larger variant or the
// original instead of failing, and cache validators are derived from the
// record's update time so that edits invalidate client caches while
// unchanged images keep stable URLs.
package resolver
